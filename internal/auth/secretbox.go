package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// secretBoxVersion prefixes every ciphertext so the layout can change later
// without ambiguity.
const secretBoxVersion byte = 1

// ErrDecrypt is returned when a ciphertext was tampered with, truncated, or
// sealed under a different key.
var ErrDecrypt = errors.New("auth: unable to decrypt secret")

// SecretBox seals small secrets (third-party OAuth tokens) for storage at rest
// using AES-256-GCM.
//
// CIPHERTEXT LAYOUT:
//
//	version(1) || nonce(12) || gcm.Seal(plaintext)
//
// A fresh random nonce is drawn for every Encrypt call, so sealing the same
// plaintext twice produces different bytes.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives a 32-byte key from keyMaterial. Keys that are already
// exactly 32 bytes are used as-is; anything else is hashed with SHA-256.
func NewSecretBox(keyMaterial string) (*SecretBox, error) {
	if keyMaterial == "" {
		return nil, errors.New("auth: token encryption key must not be empty")
	}

	block, err := aes.NewCipher(normalizeKey([]byte(keyMaterial)))
	if err != nil {
		return nil, fmt.Errorf("auth: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("auth: creating gcm: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Encrypt seals plaintext.
func (b *SecretBox) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("auth: generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+b.aead.Overhead())
	out = append(out, secretBoxVersion)
	out = append(out, nonce...)
	return b.aead.Seal(out, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a value produced by Encrypt under the same key.
func (b *SecretBox) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := b.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+b.aead.Overhead() {
		return "", ErrDecrypt
	}
	if ciphertext[0] != secretBoxVersion {
		return "", fmt.Errorf("%w: unknown version %d", ErrDecrypt, ciphertext[0])
	}

	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext[1+nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 32 {
		return value
	}
	sum := sha256.Sum256(value)
	return sum[:]
}
