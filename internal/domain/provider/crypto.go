package provider

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSize = 12 // standard GCM nonce length
	keySize   = 32
	hkdfInfo  = "weaver provider token"
)

// TokenCipher encrypts provider access tokens with AES-256-GCM.
// Payloads are base64(nonce || ciphertext).
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from the configured key. A base64 string
// decoding to exactly 32 bytes is used as-is; anything else is treated as a
// passphrase and stretched with HKDF-SHA256.
func NewTokenCipher(key string) (*TokenCipher, error) {
	if key == "" {
		return nil, errors.New("crypto key is required")
	}
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &TokenCipher{aead: gcm}, nil
}

func deriveKey(key string) []byte {
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == keySize {
		return raw
	}
	out := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(key), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf only fails after 255*hash-size bytes.
		panic(err)
	}
	return out
}

// Encrypt seals plaintext and returns the encoded payload.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *TokenCipher) Decrypt(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	if len(raw) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}
