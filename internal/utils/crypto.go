package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// SealedPrefix marks values produced by SecretBox.Seal. Open treats values
// without it as legacy plaintext.
const SealedPrefix = "enc:v1:"

var ErrInvalidSealed = errors.New("invalid sealed value")

// HMACSHA256Hex signs payload with secret.
func HMACSHA256Hex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SecretBox seals short secrets (database passwords) with NaCl secretbox.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox derives the key from secret. An empty secret returns nil.
func NewSecretBox(secret string) *SecretBox {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &SecretBox{key: sha256.Sum256([]byte(secret))}
}

// Seal always encrypts, even when plain already carries SealedPrefix.
func (b *SecretBox) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

func (b *SecretBox) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, SealedPrefix) {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrInvalidSealed
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidSealed
	}
	return string(plain), nil
}
