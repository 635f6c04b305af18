// Package cryptoutil holds the hashing and symmetric encryption helpers shared by the
// wallet endpoints and the API key check.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// HashString hashes data with bcrypt at the default cost.
func HashString(data string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(data), bcrypt.DefaultCost)
	return string(bytes), err
}

// CompareHash reports whether data matches a bcrypt hash.
func CompareHash(data, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(data))
	return err == nil
}

func gcmFromSecret(secret string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// EncryptString encrypts plaintext with AES-256-GCM under SHA-256(secret).
// Output is base64(nonce || ciphertext || tag).
func EncryptString(plaintext, secret string) (string, error) {
	gcm, err := gcmFromSecret(secret)
	if err != nil {
		return "", fmt.Errorf("[cryptoutil EncryptString] %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("[cryptoutil EncryptString] nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encrypted, secret string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("[cryptoutil DecryptString] decode: %w", err)
	}
	if len(data) < nonceSize+tagSize {
		return "", fmt.Errorf("[cryptoutil DecryptString] ciphertext too short")
	}
	gcm, err := gcmFromSecret(secret)
	if err != nil {
		return "", fmt.Errorf("[cryptoutil DecryptString] %w", err)
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("[cryptoutil DecryptString] %w", err)
	}
	return string(plaintext), nil
}
