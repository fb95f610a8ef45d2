package totp

import (
	"bytes"
	"errors"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

// SecretSize is the number of random bytes in a provisioned secret (160 bits).
const SecretSize = 20

// MinSecretBytes is the smallest decoded secret accepted at enrollment time.
const MinSecretBytes = 10

// ErrSecretTooShort is returned when an enrolled secret decodes to fewer than MinSecretBytes.
var ErrSecretTooShort = errors.New("totp secret shorter than 80 bits")

// Key is a freshly provisioned authenticator secret.
type Key struct {
	// Secret is the unpadded base32 secret to persist on the account record.
	Secret string
	// URI is the otpauth:// provisioning URI for authenticator apps.
	URI string

	key *otp.Key
}

// GenerateKey creates a random secret for account under issuer and returns
// it together with its provisioning URI.
func GenerateKey(issuer, account string, p Params) (*Key, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	alg, err := otpAlgorithm(p.Algorithm)
	if err != nil {
		return nil, err
	}

	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(p.Period),
		SecretSize:  SecretSize,
		Digits:      otp.Digits(p.Digits),
		Algorithm:   alg,
	})
	if err != nil {
		return nil, err
	}

	return &Key{
		Secret: key.Secret(),
		URI:    key.String(),
		key:    key,
	}, nil
}

// QRCode renders the provisioning URI as a PNG of the requested size.
func (k *Key) QRCode(width, height int) ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, ErrInvalidSecret
	}
	img, err := k.key.Image(width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CheckEnrollable validates a secret supplied for enrollment: it must decode
// and carry at least MinSecretBytes of entropy.
func CheckEnrollable(secret string) error {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return err
	}
	if len(raw) < MinSecretBytes {
		return ErrSecretTooShort
	}
	return nil
}

func otpAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, ErrUnsupportedAlgorithm
	}
}
