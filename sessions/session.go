package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
)

// Status is the lifecycle state of a call verification session.
type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusProofVerified Status = "proof_verified"
	StatusRejected      Status = "rejected"
)

const (
	keyPrefix           = "phone_call_"
	connectionKeyPrefix = "phone_call_connection_"

	// DefaultTTL is how long a session survives after its last write.
	DefaultTTL = 300 * time.Second

	maxMutateAttempts = 5
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusProofVerified, StatusRejected:
		return true
	}
	return false
}

// Record tracks one phone call and the identity verification attached to it.
// At most one record exists per phone number; it is evicted by TTL, never deleted
// on normal completion.
type Record struct {
	PhoneNumber    string            `json:"phoneNumber"`
	Status         Status            `json:"status"`
	ConnectionID   string            `json:"connectionId,omitempty"`
	CallID         string            `json:"callId,omitempty"`
	CredentialData map[string]string `json:"credentialData,omitempty"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Version        int64             `json:"version"` // Incremented by the store on every write
}

// Key is the store key holding the record for a phone number.
func Key(phoneNumber string) string {
	return keyPrefix + phoneNumber
}

// ConnectionKey is the secondary index key mapping a connection to its phone number.
func ConnectionKey(connectionID string) string {
	return connectionKeyPrefix + connectionID
}

// KeyPattern matches every key owned by the session store.
func KeyPattern() string {
	return keyPrefix + "*"
}

// Repo is the session state register. Every method returns an error wrapping
// errors.ErrStoreUnavailable when the backing store cannot be reached; callers must
// treat that as "state unknown", never as "no session".
type Repo interface {
	// Get returns errors.ErrSessionNotFound when no live record exists.
	Get(ctx context.Context, phoneNumber string) (*Record, error)
	// Set overwrites unconditionally and resets the TTL.
	Set(ctx context.Context, record *Record, ttl time.Duration) error
	// SetIfAbsent writes only when no record exists. First writer wins.
	SetIfAbsent(ctx context.Context, record *Record, ttl time.Duration) (bool, error)
	// CompareAndSet writes only if the stored version still equals record.Version,
	// otherwise it returns errors.ErrVersionConflict.
	CompareAndSet(ctx context.Context, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, phoneNumber string) (int64, error)
	IncrementAtomic(ctx context.Context, key string, n int64) (int64, error)
	// FindPhoneByConnection resolves the secondary connection index.
	FindPhoneByConnection(ctx context.Context, connectionID string) (string, error)
	// Flush removes every session key and returns how many were deleted.
	Flush(ctx context.Context) (int64, error)
	Close() error
}

// Mutate reads the record for phoneNumber, applies fn and writes it back with
// compare-and-set, retrying when a concurrent writer got there first.
func Mutate(ctx context.Context, repo Repo, phoneNumber string, ttl time.Duration, fn func(*Record) error) (*Record, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		record, err := repo.Get(ctx, phoneNumber)
		if err != nil {
			return nil, err
		}
		if err := fn(record); err != nil {
			return nil, err
		}
		err = repo.CompareAndSet(ctx, record, ttl)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, errors.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, errors.Wrapf(lastErr, "[sessions Mutate] %s after %d attempts", phoneNumber, maxMutateAttempts)
}

// Clone returns a deep copy so stored records cannot be mutated through a caller's pointer.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.CredentialData != nil {
		c.CredentialData = make(map[string]string, len(r.CredentialData))
		for k, v := range r.CredentialData {
			c.CredentialData[k] = v
		}
	}
	return &c
}
