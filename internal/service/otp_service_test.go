package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPDeriveSecretDeterministic(t *testing.T) {
	svc := NewOTPService(OTPConfig{SecretKey: "test-key"})

	first := svc.DeriveSecret("ana@example.com|stu-1")
	second := svc.DeriveSecret("ana@example.com|stu-1")
	assert.Equal(t, first, second)

	other := svc.DeriveSecret("ben@example.com|stu-2")
	assert.NotEqual(t, first, other)

	// Identity normalization: case and surrounding whitespace do not matter.
	assert.Equal(t, first, svc.DeriveSecret("  ANA@Example.com|stu-1 "))
}

func TestOTPDeriveSecretDependsOnServiceKey(t *testing.T) {
	a := NewOTPService(OTPConfig{SecretKey: "key-a"})
	b := NewOTPService(OTPConfig{SecretKey: "key-b"})

	assert.NotEqual(t, a.DeriveSecret("ana@example.com"), b.DeriveSecret("ana@example.com"))
}

func TestOTPVerifyWithinWindow(t *testing.T) {
	window := 5 * time.Minute
	// Aligned to the window so the code stays inside one time step.
	base := time.Unix(300_000, 0).UTC()
	now := base
	svc := NewOTPService(OTPConfig{
		SecretKey: "test-key",
		Window:    window,
		Now:       func() time.Time { return now },
	})

	secret := svc.DeriveSecret("ana@example.com|stu-1")
	code, err := svc.GenerateCode(secret)
	require.NoError(t, err)
	require.Len(t, code, 6)

	assert.True(t, svc.Verify(secret, code))

	now = base.Add(window - time.Second)
	assert.True(t, svc.Verify(secret, code))
}

func TestOTPVerifyRejectsExpiredCode(t *testing.T) {
	window := 5 * time.Minute
	base := time.Unix(300_000, 0).UTC()
	now := base
	svc := NewOTPService(OTPConfig{
		SecretKey: "test-key",
		Window:    window,
		Now:       func() time.Time { return now },
	})

	secret := svc.DeriveSecret("ana@example.com|stu-1")
	code, err := svc.GenerateCode(secret)
	require.NoError(t, err)

	now = base.Add(window + time.Second)
	assert.False(t, svc.Verify(secret, code))
}

func TestOTPVerifyRejectsWrongSecret(t *testing.T) {
	base := time.Unix(300_000, 0).UTC()
	svc := NewOTPService(OTPConfig{
		SecretKey: "test-key",
		Window:    5 * time.Minute,
		Now:       func() time.Time { return base },
	})

	code, err := svc.GenerateCode(svc.DeriveSecret("ana@example.com"))
	require.NoError(t, err)

	assert.False(t, svc.Verify(svc.DeriveSecret("ben@example.com"), code))
}

func TestOTPVerifyMalformedInput(t *testing.T) {
	svc := NewOTPService(OTPConfig{SecretKey: "test-key"})
	secret := svc.DeriveSecret("ana@example.com")

	assert.False(t, svc.Verify(secret, ""))
	assert.False(t, svc.Verify(secret, "not-a-code"))
	assert.False(t, svc.Verify("", "123456"))
}
