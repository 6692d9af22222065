// Package keyservice is the boundary to the master-key service that wraps and
// unwraps per-item data keys. Callers never see master key material.
package keyservice

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers network failures and timeouts.
	ErrUnavailable = errors.New("key service unavailable")
	// ErrDenied covers permission failures and unknown or disabled master keys.
	ErrDenied = errors.New("key service denied the request")
	// ErrInvalidCiphertext means the service answered but the wrapped key is corrupt.
	ErrInvalidCiphertext = errors.New("wrapped key is invalid")
)

// DataKey is a fresh symmetric key in plaintext and master-key-wrapped form.
// Plaintext must be zeroed by the caller once used.
type DataKey struct {
	Plaintext []byte
	Wrapped   []byte
}

type Client interface {
	GenerateDataKey(ctx context.Context, masterKeyID string) (DataKey, error)
	DecryptDataKey(ctx context.Context, masterKeyID string, wrapped []byte) ([]byte, error)
}
