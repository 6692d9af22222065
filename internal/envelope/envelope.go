// Package envelope encrypts payloads with a one-time data key that is wrapped
// by the master-key service. Only the wrapped key, nonce and ciphertext are
// meant to be stored.
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vedran77/sprout/internal/keyservice"
	"github.com/vedran77/sprout/internal/logger"
)

const (
	SchemeAESGCM   = "AES256-GCM/v1"
	SchemeXChaCha  = "XCHACHA20-POLY1305/v1"
	DefaultTimeout = 5 * time.Second
)

var (
	ErrEncryption = errors.New("encryption failure")
	// ErrDecryption is returned for every read-side fault, whether the key
	// could not be unwrapped or the ciphertext failed authentication.
	ErrDecryption = errors.New("decryption failure")
)

// Sealed is the durable result of one Encrypt call.
type Sealed struct {
	Ciphertext []byte
	WrappedKey []byte
	Nonce      []byte
	Scheme     string
}

type Cipher struct {
	keys        keyservice.Client
	masterKeyID string
	scheme      string
	timeout     time.Duration
	log         *logger.Logger
}

type Option func(*Cipher)

// WithScheme selects the scheme used for new encryptions. Decryption always
// follows the scheme recorded in Sealed.
func WithScheme(scheme string) Option {
	return func(c *Cipher) { c.scheme = scheme }
}

// WithTimeout bounds each key service call.
func WithTimeout(d time.Duration) Option {
	return func(c *Cipher) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Cipher) { c.log = log.With("component", "envelope") }
}

func New(keys keyservice.Client, masterKeyID string, opts ...Option) (*Cipher, error) {
	if keys == nil {
		return nil, errors.New("envelope: key service client required")
	}
	if masterKeyID == "" {
		return nil, errors.New("envelope: master key id required")
	}
	c := &Cipher{
		keys:        keys,
		masterKeyID: masterKeyID,
		scheme:      SchemeAESGCM,
		timeout:     DefaultTimeout,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !supported(c.scheme) {
		return nil, fmt.Errorf("envelope: unsupported scheme %q", c.scheme)
	}
	return c, nil
}

func (c *Cipher) Scheme() string { return c.scheme }

func (c *Cipher) Encrypt(ctx context.Context, plaintext []byte) (Sealed, error) {
	kctx, cancel := context.WithTimeout(ctx, c.timeout)
	dk, err := c.keys.GenerateDataKey(kctx, c.masterKeyID)
	cancel()
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: generating data key: %w", ErrEncryption, err)
	}
	defer clear(dk.Plaintext)

	aead, err := newAEAD(c.scheme, dk.Plaintext)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("%w: reading nonce: %w", ErrEncryption, err)
	}

	return Sealed{
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(c.scheme)),
		WrappedKey: dk.Wrapped,
		Nonce:      nonce,
		Scheme:     c.scheme,
	}, nil
}

func (c *Cipher) Decrypt(ctx context.Context, s Sealed) ([]byte, error) {
	if !supported(s.Scheme) {
		c.log.Warn("Unsupported envelope scheme", "scheme", s.Scheme)
		return nil, ErrDecryption
	}

	kctx, cancel := context.WithTimeout(ctx, c.timeout)
	key, err := c.keys.DecryptDataKey(kctx, c.masterKeyID, s.WrappedKey)
	cancel()
	if err != nil {
		c.log.Warn("Data key unwrap failed", "scheme", s.Scheme, "error", err)
		return nil, ErrDecryption
	}
	defer clear(key)

	aead, err := newAEAD(s.Scheme, key)
	if err != nil {
		c.log.Warn("Data key rejected by cipher", "scheme", s.Scheme, "error", err)
		return nil, ErrDecryption
	}
	if len(s.Nonce) != aead.NonceSize() {
		c.log.Warn("Nonce size mismatch", "scheme", s.Scheme, "nonce_len", len(s.Nonce))
		return nil, ErrDecryption
	}

	plaintext, err := aead.Open(nil, s.Nonce, s.Ciphertext, []byte(s.Scheme))
	if err != nil {
		c.log.Warn("Ciphertext failed authentication", "scheme", s.Scheme)
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func supported(scheme string) bool {
	return scheme == SchemeAESGCM || scheme == SchemeXChaCha
}

func newAEAD(scheme string, key []byte) (cipher.AEAD, error) {
	switch scheme {
	case SchemeAESGCM:
		if len(key) != 32 {
			return nil, fmt.Errorf("data key must be 32 bytes, got %d", len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SchemeXChaCha:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
}
