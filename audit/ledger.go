// Package audit keeps a durable ledger of verification decisions so that outcomes
// remain queryable after the session record has expired.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Source identifies which loop made the decision.
type Source string

const (
	SourceCall      Source = "call"
	SourceReconcile Source = "reconcile"

	defaultListLimit = 50
)

// Entry is one verification decision.
type Entry struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	EntryID         string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	PhoneNumber     string    `gorm:"index" json:"phoneNumber,omitempty"`
	ProofExchangeID string    `gorm:"index" json:"proofExchangeId,omitempty"`
	ConnectionID    string    `json:"connectionId,omitempty"`
	Source          Source    `gorm:"not null" json:"source"`
	Outcome         string    `gorm:"not null" json:"outcome"`
	Detail          string    `json:"detail,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	ListByPhone(ctx context.Context, phoneNumber string, limit int) ([]Entry, error)
}

var _ Recorder = (*SQLiteRepo)(nil)

// SQLiteRepo is a Recorder backed by sqlite through gorm.
type SQLiteRepo struct {
	db *gorm.DB
}

// Open opens (or creates) the ledger at path and migrates the schema. path may be a
// plain file name or a sqlite URI such as "file:ledger?mode=memory&cache=shared".
func Open(path string) (*SQLiteRepo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("[audit Open] open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("[audit Open] migrate: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Record(ctx context.Context, entry Entry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if err := gorm.G[Entry](r.db).Create(ctx, &entry); err != nil {
		return fmt.Errorf("[audit Record] %w", err)
	}
	return nil
}

// ListByPhone returns the most recent entries for a phone number, newest first.
func (r *SQLiteRepo) ListByPhone(ctx context.Context, phoneNumber string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	entries, err := gorm.G[Entry](r.db).
		Where("phone_number = ?", phoneNumber).
		Order("id desc").
		Limit(limit).
		Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("[audit ListByPhone] %w", err)
	}
	return entries, nil
}

func (r *SQLiteRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
