package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"postflow/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

var Module = fx.Module("sealer", fx.Provide(Provide))

const prefix = "v1:"

var ErrMalformed = errors.New("sealer: malformed ciphertext")

// Sealer encrypts secrets before they reach the database.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Provide builds a Sealer from SECURITY.TOKEN_KEY. Without a key values are
// stored as given, which is only acceptable outside production.
func Provide(cfg *config.Config) (Sealer, error) {
	if cfg.Security.TokenKey == "" {
		if cfg.AppEnv == "production" {
			return nil, errors.New("SECURITY.TOKEN_KEY is required in production")
		}
		zap.L().Warn("SECURITY.TOKEN_KEY not set, credentials are stored unsealed")
		return Plain{}, nil
	}

	key, err := hex.DecodeString(cfg.Security.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("SECURITY.TOKEN_KEY is not hex: %w", err)
	}
	return New(key)
}

type aeadSealer struct {
	aead cipher.AEAD
}

// New returns an XChaCha20-Poly1305 sealer. key must be 32 bytes.
func New(key []byte) (Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &aeadSealer{aead: aead}, nil
}

func (s *aeadSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *aeadSealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	// Rows written before a key was configured.
	if !strings.HasPrefix(sealed, prefix) {
		return sealed, nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrMalformed
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("sealer: open: %w", err)
	}
	return string(plain), nil
}

// Plain stores values untouched.
type Plain struct{}

func (Plain) Seal(plaintext string) (string, error) { return plaintext, nil }
func (Plain) Open(sealed string) (string, error)    { return sealed, nil }
