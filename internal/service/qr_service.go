package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rollcall-dev/rollcall-api/internal/models"
	appErrors "github.com/rollcall-dev/rollcall-api/pkg/errors"
)

// qrFieldCount is the fixed field count of the payload format:
// courseID|lat|lon|strict|radiusMeters|expiresAt(RFC3339).
const qrFieldCount = 6

// QRPayload is the decoded content of a scannable session descriptor. A
// decoded payload may already be expired; expiry is a business rule checked
// by the coordinator, not a format error.
type QRPayload struct {
	CourseID   string
	Center     models.GeoPoint
	StrictMode bool
	RadiusM    float64
	ExpiresAt  time.Time
}

// QRService encodes session descriptors into scannable payloads and renders
// them as PNG images.
type QRService struct {
	imageSize int
}

// NewQRService constructs the QR codec.
func NewQRService(imageSize int) *QRService {
	if imageSize <= 0 {
		imageSize = 512
	}
	return &QRService{imageSize: imageSize}
}

// Encode serialises the session descriptor into the pipe-delimited payload.
func (s *QRService) Encode(p QRPayload) string {
	return fmt.Sprintf("%s|%.6f|%.6f|%t|%.1f|%s",
		p.CourseID,
		p.Center.Latitude,
		p.Center.Longitude,
		p.StrictMode,
		p.RadiusM,
		p.ExpiresAt.UTC().Format(time.RFC3339),
	)
}

// Decode parses a payload string. It fails with MalformedPayload on field
// count or type errors; it deliberately succeeds on expired payloads.
func (s *QRService) Decode(raw string) (*QRPayload, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != qrFieldCount {
		return nil, appErrors.Clone(appErrors.ErrMalformedPayload, fmt.Sprintf("expected %d fields, got %d", qrFieldCount, len(parts)))
	}
	if parts[0] == "" {
		return nil, appErrors.Clone(appErrors.ErrMalformedPayload, "missing course id")
	}

	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "invalid latitude")
	}
	lon, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "invalid longitude")
	}
	strict, err := strconv.ParseBool(parts[3])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "invalid strict flag")
	}
	radius, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "invalid radius")
	}
	expires, err := time.Parse(time.RFC3339, parts[5])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "invalid expiration timestamp")
	}

	return &QRPayload{
		CourseID:   parts[0],
		Center:     models.GeoPoint{Latitude: lat, Longitude: lon},
		StrictMode: strict,
		RadiusM:    radius,
		ExpiresAt:  expires,
	}, nil
}

// LooksLikePayload reports whether a credential string is shaped like an
// encoded payload rather than a numeric OTP code.
func (s *QRService) LooksLikePayload(credential string) bool {
	return strings.Count(credential, "|") == qrFieldCount-1
}

// RenderPNG renders the payload into a PNG image.
func (s *QRService) RenderPNG(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, s.imageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
