package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrInvalidKey         = errors.New("encryption key must be exactly 32 bytes")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	// ErrDecrypt covers a wrong key, a wrong binding and tampering alike.
	ErrDecrypt = errors.New("failed to decrypt: message authentication failed")
)

// Encryptor seals processor credentials at rest with AES-256-GCM. The
// stored form is base64(nonce || ciphertext || tag).
//
// Every value is sealed against a binding (the owner and column it is
// stored in) passed as additional authenticated data, so a ciphertext
// copied onto another profile row fails to open.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt returns "" for an empty plaintext so NULL-able columns stay empty.
func (e *Encryptor) Encrypt(plaintext, binding string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(binding))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value sealed with the same binding.
func (e *Encryptor) Decrypt(ciphertext, binding string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(binding))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
