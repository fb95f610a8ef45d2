package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultPeriod is the RFC 6238 time step in seconds.
	DefaultPeriod = 30
	// DefaultDigits is the code length used by authenticator apps.
	DefaultDigits = 6
	// DefaultSkew is the number of adjacent steps accepted on either side of now.
	DefaultSkew = 1
)

var (
	// ErrInvalidSecret is returned when a base32 secret cannot be decoded.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrUnsupportedAlgorithm is returned for algorithms other than SHA1, SHA256 and SHA512.
	ErrUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
	// ErrInvalidParams is returned when Params carry an unusable period or digit count.
	ErrInvalidParams = errors.New("invalid totp parameters")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Params configures code derivation. The zero value is not usable; start
// from DefaultParams.
type Params struct {
	Period    int
	Digits    int
	Skew      int
	Algorithm string
}

// DefaultParams returns 30 second steps, 6 digits, ±1 step skew and HMAC-SHA1.
func DefaultParams() Params {
	return Params{
		Period:    DefaultPeriod,
		Digits:    DefaultDigits,
		Skew:      DefaultSkew,
		Algorithm: "SHA1",
	}
}

// Validate reports whether p can derive codes.
func (p Params) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("%w: period must be > 0", ErrInvalidParams)
	}
	if p.Digits != 6 && p.Digits != 8 {
		return fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidParams)
	}
	if p.Skew < 0 || p.Skew > 10 {
		return fmt.Errorf("%w: skew must be within [0,10]", ErrInvalidParams)
	}
	if _, err := hmacFunc(p.Algorithm); err != nil {
		return err
	}
	return nil
}

// DecodeSecret decodes a base32 secret. Whitespace and '=' padding are
// stripped and letters are upper-cased first, so "jbsw y3dp ehpk 3pxp" and
// "JBSWY3DPEHPK3PXP====" decode identically. An empty result is an error.
func DecodeSecret(secret string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '=' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, secret)
	if cleaned == "" {
		return nil, ErrInvalidSecret
	}

	raw, err := secretEncoding.DecodeString(cleaned)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// Counter returns the time-step counter for t.
func Counter(t time.Time, period int) int64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	return t.Unix() / int64(period)
}

// CurrentCode returns the code for a base32 secret at time t.
func CurrentCode(secret string, t time.Time, p Params) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return GenerateCode(raw, t, p)
}

// GenerateCode returns the code for raw secret bytes at time t.
func GenerateCode(secret []byte, t time.Time, p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}
	return hotpCode(secret, Counter(t, p.Period), p.Digits, p.Algorithm)
}

// Verify reports whether code is valid for the base32 secret at time t.
//
// It never returns an error: a malformed code, an undecodable secret, or
// bad params all yield false. The code format is checked before any HMAC work.
func Verify(secret, code string, t time.Time, p Params) bool {
	if !wellFormed(code, p.Digits) {
		return false
	}
	raw, err := DecodeSecret(secret)
	if err != nil {
		return false
	}
	ok, _ := VerifyCounter(raw, code, t, p)
	return ok
}

// VerifyCounter checks code against raw secret bytes and returns the matched
// time-step counter. Callers use the counter to refuse replays of a code
// within its acceptance window.
func VerifyCounter(secret []byte, code string, t time.Time, p Params) (bool, int64) {
	if !wellFormed(code, p.Digits) || len(secret) == 0 {
		return false, 0
	}
	if err := p.Validate(); err != nil {
		return false, 0
	}

	base := Counter(t, p.Period)
	for step := -p.Skew; step <= p.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, p.Digits, p.Algorithm)
		if err != nil {
			return false, 0
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return true, counter
		}
	}
	return false, 0
}

func wellFormed(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}
