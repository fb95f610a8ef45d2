package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minIterations = 100_000
	minKeyLength  = 32
	algorithmID   = "pbkdf2-sha256"

	// DefaultIterations is the iteration count applied when Config.Iterations is zero.
	DefaultIterations = 210_000
	// DefaultKeyLength is the derived key size in bytes applied when Config.KeyLength is zero.
	DefaultKeyLength = 32
)

var (
	// ErrInvalidHash is returned when a stored digest cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash encoding")
	// ErrWeakConfig is returned when the configured cost is below the accepted floor.
	ErrWeakConfig = errors.New("pbkdf2 configuration below minimum cost")
)

// Config controls PBKDF2 cost and the application-level salt constant.
//
// Pepper is concatenated with the normalized identifier to form the salt, so
// every deployment must treat it as a secret and keep it stable.
type Config struct {
	Pepper     string
	Iterations int
	KeyLength  int
}

// PBKDF2 derives deterministic PBKDF2-HMAC-SHA256 digests keyed by account identifier.
//
// PBKDF2 instances are immutable after construction and safe for concurrent use.
type PBKDF2 struct {
	config Config
}

type parsedDigest struct {
	iterations int
	key        []byte
	legacy     bool
}

// NewPBKDF2 validates cfg, applies defaults, and returns a hasher.
func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = DefaultKeyLength
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &PBKDF2{config: cfg}, nil
}

// Derive returns the bare lowercase-hex digest of secret for identifier.
//
// The result is a pure function of (Pepper, identifier, secret, cost): calling
// Derive twice with the same inputs yields the same string. An empty secret is
// hashed like any other value; policy layers reject it before reaching here.
func (p *PBKDF2) Derive(secret, identifier string) string {
	return hex.EncodeToString(p.derive(secret, identifier, p.config.Iterations))
}

// Hash returns the versioned encoding of the digest:
//
//	$pbkdf2-sha256$i=<iterations>$<lowercase hex>
func (p *PBKDF2) Hash(secret, identifier string) (string, error) {
	return fmt.Sprintf("$%s$i=%d$%s", algorithmID, p.config.Iterations, p.Derive(secret, identifier)), nil
}

// Verify recomputes the digest for secret and identifier and compares it
// with encoded in constant time.
//
// Both the versioned form produced by Hash and a bare hex digest (as written
// by earlier deployments) are accepted; bare digests are assumed to use the
// configured iteration count.
func (p *PBKDF2) Verify(secret, identifier, encoded string) (bool, error) {
	parsed, err := p.parse(encoded)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(secret), p.salt(identifier), parsed.iterations, len(parsed.key), sha256.New)
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration, or in the unversioned legacy form.
func (p *PBKDF2) NeedsUpgrade(encoded string) (bool, error) {
	parsed, err := p.parse(encoded)
	if err != nil {
		return false, err
	}
	if parsed.legacy {
		return true, nil
	}
	return parsed.iterations < p.config.Iterations || len(parsed.key) < p.config.KeyLength, nil
}

func (p *PBKDF2) derive(secret, identifier string, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), p.salt(identifier), iterations, p.config.KeyLength, sha256.New)
}

func (p *PBKDF2) salt(identifier string) []byte {
	return []byte(p.config.Pepper + NormalizeIdentifier(identifier))
}

func (p *PBKDF2) parse(encoded string) (parsedDigest, error) {
	if !strings.HasPrefix(encoded, "$") {
		key, err := decodeHexDigest(encoded)
		if err != nil {
			return parsedDigest{}, err
		}
		return parsedDigest{iterations: p.config.Iterations, key: key, legacy: true}, nil
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[1] != algorithmID {
		return parsedDigest{}, ErrInvalidHash
	}
	if !strings.HasPrefix(parts[2], "i=") {
		return parsedDigest{}, ErrInvalidHash
	}
	iterations, err := strconv.Atoi(strings.TrimPrefix(parts[2], "i="))
	if err != nil || iterations < minIterations {
		return parsedDigest{}, ErrInvalidHash
	}
	key, err := decodeHexDigest(parts[3])
	if err != nil {
		return parsedDigest{}, err
	}
	return parsedDigest{iterations: iterations, key: key}, nil
}

func decodeHexDigest(s string) ([]byte, error) {
	if len(s) < 2*minKeyLength || s != strings.ToLower(s) {
		return nil, ErrInvalidHash
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHash
	}
	return key, nil
}

// NormalizeIdentifier lower-cases and trims an account identifier. The same
// normalization is used for salts and for every keyed lookup in the engine.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < minIterations {
		return fmt.Errorf("%w: iterations must be >= %d", ErrWeakConfig, minIterations)
	}
	if cfg.KeyLength < minKeyLength {
		return fmt.Errorf("%w: key length must be >= %d bytes", ErrWeakConfig, minKeyLength)
	}
	if cfg.Pepper == "" {
		return errors.New("pbkdf2 pepper must not be empty")
	}
	return nil
}
