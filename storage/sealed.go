package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCorrupt is returned when a sealed value fails authentication.
var ErrCorrupt = errors.New("storage: sealed value corrupt")

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to the
// wrapped Storage. The key is bound to each value as associated data, so a value
// copied under another key does not open.
type Sealed struct {
	next Storage
	aead cipher.AEAD
}

// NewSealed wraps next with a 32-byte key.
func NewSealed(next Storage, key []byte) (*Sealed, error) {
	if next == nil {
		return nil, errors.New("storage: sealed storage requires a backing store")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("storage: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("storage: creating cipher: %w", err)
	}
	return &Sealed{next: next, aead: aead}, nil
}

// NewSealedBase64 is NewSealed with a base64-encoded key.
func NewSealedBase64(next Storage, encodedKey string) (*Sealed, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid base64 key: %w", err)
	}
	return NewSealed(next, key)
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize+s.aead.Overhead() {
		return nil, ErrCorrupt
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := s.aead.Open(nil, nonce, sealed, []byte(key))
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("storage: generating nonce: %w", err)
	}
	return s.next.Set(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}
