// Package secret seals and opens tenant connection strings.
//
// Connection descriptors are stored sealed; the gateway opens a DSN once per
// operation and discards the plaintext with the call frame. Nothing in this
// module ever persists a decrypted secret.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Keeper seals plaintext secrets with an AEAD keyed at construction.
type Keeper struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewKeeper creates a Keeper from a 32-byte key.
func NewKeeper(key []byte) (*Keeper, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	return &Keeper{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 string carrying nonce||ciphertext.
func (k *Keeper) Seal(plaintext string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := k.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a string produced by Seal.
func (k *Keeper) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed secret: %w", err)
	}
	ns := k.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("sealed secret too short")
	}
	plaintext, err := k.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed secret: %w", err)
	}
	return string(plaintext), nil
}
