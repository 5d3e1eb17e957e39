package service

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTPConfig tunes code generation and verification.
type OTPConfig struct {
	// SecretKey seeds per-student secret derivation. Rotating it invalidates
	// every outstanding code.
	SecretKey string
	// Window is the validity period of one code.
	Window time.Duration
	// SkewWindows widens verification by that many adjacent periods.
	SkewWindows uint
	// Now is the injected clock.
	Now func() time.Time
}

// OTPService derives per-student secrets and issues time-stepped codes.
type OTPService struct {
	secretKey []byte
	window    time.Duration
	skew      uint
	now       func() time.Time
}

// NewOTPService constructs the OTP service.
func NewOTPService(cfg OTPConfig) *OTPService {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OTPService{
		secretKey: []byte(cfg.SecretKey),
		window:    cfg.Window,
		skew:      cfg.SkewWindows,
		now:       cfg.Now,
	}
}

// DeriveSecret deterministically derives a TOTP secret from a stable student
// identity. The same identity always yields the same secret for a given
// service key.
func (s *OTPService) DeriveSecret(identity string) string {
	mac := hmac.New(sha1.New, s.secretKey)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(identity))))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(mac.Sum(nil))
}

// GenerateCode produces the numeric code for the current time window.
func (s *OTPService) GenerateCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, s.now(), s.validateOpts())
}

// Verify checks a code against the current window (plus configured skew).
// It returns false, never an error, on malformed input.
func (s *OTPService) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now(), s.validateOpts())
	if err != nil {
		return false
	}
	return ok
}

func (s *OTPService) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.window.Seconds()),
		Skew:      s.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
