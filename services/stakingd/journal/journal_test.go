package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stakeledger/core/types"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	j, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	evt := types.NewEvent("staking.claim_reward", "address", "stake1abc", "amount", "42")
	first := &Entry{
		Action:     "claim_reward",
		Caller:     "stake1abc",
		Outcome:    OutcomeCommitted,
		EventType:  evt.Type,
		Attributes: EncodeAttributes(evt),
		Amount:     "42",
		CreatedAt:  base,
	}
	require.NoError(t, j.Record(ctx, first))
	require.NotEqual(t, uuid.Nil, first.ID)

	require.NoError(t, j.Record(ctx, &Entry{
		Action:    "unstake",
		Caller:    "stake1abc",
		Outcome:   OutcomeRejected,
		Error:     "staking: insufficient stake",
		CreatedAt: base.Add(time.Minute),
	}))

	entries, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "unstake", entries[0].Action)
	require.Equal(t, OutcomeRejected, entries[0].Outcome)

	attrs, err := entries[1].DecodeAttributes()
	require.NoError(t, err)
	require.Equal(t, "42", attrs["amount"])

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)

	_, err = Open(DriverPostgres, "")
	require.Error(t, err)

	j, err := Open(DriverSQLite, "")
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestEncodeAttributesEmpty(t *testing.T) {
	require.Empty(t, EncodeAttributes(nil))
	attrs, err := Entry{}.DecodeAttributes()
	require.NoError(t, err)
	require.Empty(t, attrs)
}
