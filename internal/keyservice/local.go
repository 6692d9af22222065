package keyservice

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

const dataKeySize = 32

// Local wraps data keys with in-process master keys. It is meant for
// development and tests; production deployments use KMS.
type Local struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewLocal() *Local {
	return &Local{keys: make(map[string][]byte)}
}

// AddKey registers a 32-byte master key under id.
func (l *Local) AddKey(id string, key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("master key %q must be 32 bytes, got %d", id, len(key))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[id] = append([]byte(nil), key...)
	return nil
}

// AddEncodedKey registers a base64 encoded master key.
func (l *Local) AddEncodedKey(id, encoded string) error {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding master key %q: %w", id, err)
	}
	return l.AddKey(id, key)
}

// GenerateKey registers a random master key under id. Data wrapped with it
// does not survive a restart.
func (l *Local) GenerateKey(id string) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	return l.AddKey(id, key)
}

func (l *Local) GenerateDataKey(ctx context.Context, masterKeyID string) (DataKey, error) {
	if err := ctx.Err(); err != nil {
		return DataKey{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	aead, err := l.aead(masterKeyID)
	if err != nil {
		return DataKey{}, err
	}

	plaintext := make([]byte, dataKeySize)
	if _, err := rand.Read(plaintext); err != nil {
		return DataKey{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return DataKey{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	wrapped := aead.Seal(nonce, nonce, plaintext, []byte(masterKeyID))
	return DataKey{Plaintext: plaintext, Wrapped: wrapped}, nil
}

func (l *Local) DecryptDataKey(ctx context.Context, masterKeyID string, wrapped []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	aead, err := l.aead(masterKeyID)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(masterKeyID))
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

func (l *Local) aead(masterKeyID string) (cipher.AEAD, error) {
	l.mu.RLock()
	key, ok := l.keys[masterKeyID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown master key %q", ErrDenied, masterKeyID)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
