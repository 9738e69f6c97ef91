package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"flashdeck/pkg/errors"
)

// Key derivation parameters for the session secret
const (
	DefaultPBKDF2Iterations = 100000 // OWASP recommended minimum
	DefaultKeyLength        = 32     // 256 bits
)

// sealSalt is fixed so every process sharing a secret derives the same key.
var sealSalt = []byte("flashdeck/session-record/v1")

// Sealer encrypts persisted session records with AES-GCM under a key derived
// from the configured session secret.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New(errors.ErrTypeConfig, "SESSION_SECRET_EMPTY", "session secret cannot be empty")
	}

	key := pbkdf2.Key([]byte(secret), sealSalt, DefaultPBKDF2Iterations, DefaultKeyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.From(errors.ErrSealFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.From(errors.ErrSealFailed, err)
	}

	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext, base64 encoded.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.From(errors.ErrSealFailed, err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, errors.From(errors.ErrOpenFailed, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.From(errors.ErrOpenFailed, fmt.Errorf("ciphertext too short"))
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.From(errors.ErrOpenFailed, err)
	}

	return plaintext, nil
}
