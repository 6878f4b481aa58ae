// Package idempotency reserves client-supplied keys so a logical request is executed once per tenant.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxKeyLength bounds accepted idempotency keys.
	MaxKeyLength = 100

	DefaultTTL          = 10 * time.Minute
	DefaultPollInterval = 250 * time.Millisecond
)

var (
	ErrKeyRequired = errors.New("idempotency key is required")
	ErrKeyTooLong  = fmt.Errorf("idempotency key exceeds %d characters", MaxKeyLength)
)

// Entry is a reservation or, once DocumentID is set, a completed result.
type Entry struct {
	DocumentID  string    `json:"documentId,omitempty"`
	PayloadHash string    `json:"payloadHash"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Completed reports whether the entry already points at a document.
func (e *Entry) Completed() bool {
	return e != nil && e.DocumentID != ""
}

// Store is implemented by the in-process and the redis backed stores. Both behave identically.
type Store interface {
	// Reserve atomically creates an empty entry. It returns false when the key is already taken.
	Reserve(ctx context.Context, tenantID, key, payloadHash string) (bool, error)
	// FindEntry returns the live entry or nil.
	FindEntry(ctx context.Context, tenantID, key string) (*Entry, error)
	// AwaitCompletion polls until the entry is completed. It returns nil when the entry
	// disappears or timeout elapses.
	AwaitCompletion(ctx context.Context, tenantID, key string, timeout time.Duration) (*Entry, error)
	// Complete records the document produced for the key. Calling it again overwrites the entry.
	Complete(ctx context.Context, tenantID, key, payloadHash, documentID string) error
	// Invalidate removes the entry so the key can be reserved again.
	Invalidate(ctx context.Context, tenantID, key string) error
}

// Options tune entry lifetime and polling. Zero values take the defaults.
type Options struct {
	TTL          time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NormalizeKey trims key and checks it is present and short enough.
func NormalizeKey(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return "", ErrKeyRequired
	}
	if len(k) > MaxKeyLength {
		return "", ErrKeyTooLong
	}
	return k, nil
}

// HashPayload returns the hex SHA-256 of v's JSON encoding.
// Struct fields encode in declaration order and map keys sorted, so equal payloads hash equally.
func HashPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

type findFunc func(ctx context.Context) (*Entry, error)

func awaitCompletion(ctx context.Context, find findFunc, timeout, interval time.Duration) (*Entry, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		entry, err := find(ctx)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, nil
		}
		if entry.Completed() {
			return entry, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}
