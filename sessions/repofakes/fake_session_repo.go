package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type indexEntry struct {
	phoneNumber string
	expiresAt   time.Time
}

// FakeSessionRepo is an in-memory sessions.Repo. Expiry is evaluated against Now,
// which tests can replace to move time forward.
type FakeSessionRepo struct {
	lock        sync.RWMutex
	records     map[string]*sessions.Record // phoneNumber -> record
	connections map[string]indexEntry       // connectionID -> phoneNumber
	counters    map[string]int64

	Now func() time.Time
	// FailWith, when set, makes every operation fail as if the store were unreachable.
	FailWith error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		records:     make(map[string]*sessions.Record),
		connections: make(map[string]indexEntry),
		counters:    make(map[string]int64),
		Now:         time.Now,
	}
}

func (r *FakeSessionRepo) unavailable() error {
	if r.FailWith == nil {
		return nil
	}
	return errors.Wrapf(errors.ErrStoreUnavailable, "fake store: %v", r.FailWith)
}

// live returns the unexpired record for phoneNumber. Callers hold the lock.
func (r *FakeSessionRepo) live(phoneNumber string) (*sessions.Record, bool) {
	record, ok := r.records[phoneNumber]
	if !ok {
		return nil, false
	}
	if !r.Now().Before(record.ExpiresAt) {
		return nil, false
	}
	return record, true
}

func (r *FakeSessionRepo) Get(_ context.Context, phoneNumber string) (*sessions.Record, error) {
	if err := r.unavailable(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.live(phoneNumber)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return record.Clone(), nil
}

// write stores record with a bumped version. Callers hold the lock.
func (r *FakeSessionRepo) write(record *sessions.Record, ttl time.Duration, currentVersion int64) {
	record.Version = currentVersion + 1
	record.ExpiresAt = r.Now().Add(ttl)
	r.records[record.PhoneNumber] = record.Clone()
	if record.ConnectionID != "" {
		r.connections[record.ConnectionID] = indexEntry{phoneNumber: record.PhoneNumber, expiresAt: record.ExpiresAt}
	}
}

func (r *FakeSessionRepo) Set(_ context.Context, record *sessions.Record, ttl time.Duration) error {
	if err := r.unavailable(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	var current int64
	if existing, ok := r.live(record.PhoneNumber); ok {
		current = existing.Version
	}
	r.write(record, ttl, current)
	return nil
}

func (r *FakeSessionRepo) SetIfAbsent(_ context.Context, record *sessions.Record, ttl time.Duration) (bool, error) {
	if err := r.unavailable(); err != nil {
		return false, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.live(record.PhoneNumber); ok {
		return false, nil
	}
	r.write(record, ttl, 0)
	return true, nil
}

func (r *FakeSessionRepo) CompareAndSet(_ context.Context, record *sessions.Record, ttl time.Duration) error {
	if err := r.unavailable(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	var current int64
	if existing, ok := r.live(record.PhoneNumber); ok {
		current = existing.Version
	}
	if current != record.Version {
		return errors.ErrVersionConflict
	}
	r.write(record, ttl, current)
	return nil
}

func (r *FakeSessionRepo) Delete(_ context.Context, phoneNumber string) (int64, error) {
	if err := r.unavailable(); err != nil {
		return 0, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.live(phoneNumber); !ok {
		return 0, nil
	}
	delete(r.records, phoneNumber)
	return 1, nil
}

func (r *FakeSessionRepo) IncrementAtomic(_ context.Context, key string, n int64) (int64, error) {
	if err := r.unavailable(); err != nil {
		return 0, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	r.counters[key] += n
	return r.counters[key], nil
}

func (r *FakeSessionRepo) FindPhoneByConnection(_ context.Context, connectionID string) (string, error) {
	if err := r.unavailable(); err != nil {
		return "", err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	entry, ok := r.connections[connectionID]
	if !ok || !r.Now().Before(entry.expiresAt) {
		return "", errors.ErrSessionNotFound
	}
	record, ok := r.live(entry.phoneNumber)
	if !ok || record.ConnectionID != connectionID {
		return "", errors.ErrSessionNotFound
	}
	return entry.phoneNumber, nil
}

func (r *FakeSessionRepo) Flush(_ context.Context) (int64, error) {
	if err := r.unavailable(); err != nil {
		return 0, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	removed := int64(len(r.records) + len(r.connections))
	r.records = make(map[string]*sessions.Record)
	r.connections = make(map[string]indexEntry)
	return removed, nil
}

func (r *FakeSessionRepo) Close() error {
	return nil
}
