package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM and returns base64(nonce || ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func Decrypt(encryptedData string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return string(plaintext), nil
}

// DecryptCredentials returns a copy of c with its tokens decrypted. An empty
// key means tokens are stored in the clear.
func DecryptCredentials(c models.Credentials, key string) (models.Credentials, error) {
	if key == "" {
		return c, nil
	}
	access, err := Decrypt(c.AccessToken, []byte(key))
	if err != nil {
		return c, fmt.Errorf("decrypting %s access token: %w", c.Platform, err)
	}
	c.AccessToken = access

	if c.RefreshToken != "" {
		refresh, err := Decrypt(c.RefreshToken, []byte(key))
		if err != nil {
			return c, fmt.Errorf("decrypting %s refresh token: %w", c.Platform, err)
		}
		c.RefreshToken = refresh
	}
	return c, nil
}
