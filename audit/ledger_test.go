package audit_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *audit.SQLiteRepo {
	t.Helper()
	repo, err := audit.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepo_RecordAndList(t *testing.T) {
	repo := openLedger(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, audit.Entry{PhoneNumber: "+1", ProofExchangeID: "pe-1", Source: audit.SourceCall, Outcome: "timeout"}))
	require.NoError(t, repo.Record(ctx, audit.Entry{PhoneNumber: "+1", ProofExchangeID: "pe-2", Source: audit.SourceCall, Outcome: "verified"}))
	require.NoError(t, repo.Record(ctx, audit.Entry{PhoneNumber: "+2", ProofExchangeID: "pe-3", Source: audit.SourceReconcile, Outcome: "rejected"}))

	entries, err := repo.ListByPhone(ctx, "+1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "pe-2", entries[0].ProofExchangeID)
	require.Equal(t, "verified", entries[0].Outcome)
	require.NotEmpty(t, entries[0].EntryID)
	require.False(t, entries[0].CreatedAt.IsZero())

	entries, err = repo.ListByPhone(ctx, "+1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.ListByPhone(ctx, "+3", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSQLiteRepo_KeepsProvidedEntryID(t *testing.T) {
	repo := openLedger(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, audit.Entry{EntryID: "fixed-id", PhoneNumber: "+1", Source: audit.SourceCall, Outcome: "abandoned"}))

	entries, err := repo.ListByPhone(ctx, "+1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fixed-id", entries[0].EntryID)
}
