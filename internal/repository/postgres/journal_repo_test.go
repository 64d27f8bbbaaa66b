package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/roby-guard/internal/audit"
)

func TestJournalRepo_WriteBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJournalRepo(db)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	code := uint32(5)

	events := []audit.Event{
		{ID: "a", TraceID: "t1", Instruction: "ExecuteCommand", Robot: "r", Signer: "s", Status: audit.StatusSuccess, DurationMs: 3, Timestamp: ts},
		{ID: "b", TraceID: "t2", Instruction: "ExecuteCommand", Robot: "r", Signer: "s", Status: audit.StatusFailed, ErrorCode: &code, Error: "Permission denied", DurationMs: 1, Timestamp: ts},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO invocation_journal`) + `.*\(\$11, \$12`).
		WithArgs(
			"a", "t1", "ExecuteCommand", "r", "s", audit.StatusSuccess, nil, "", int64(3), ts,
			"b", "t2", "ExecuteCommand", "r", "s", audit.StatusFailed, int64(5), "Permission denied", int64(1), ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.WriteBatch(context.Background(), events))
	require.NoError(t, repo.WriteBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalRepo_Recent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJournalRepo(db)
	ts := time.Now().UTC()

	cols := []string{"id", "trace_id", "instruction", "robot", "signer", "status", "error_code", "error", "duration_ms", "timestamp"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM invocation_journal`)).
		WithArgs("r", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b", "t2", "ExecuteCommand", "r", "s", audit.StatusFailed, int64(6), "Invalid Merkle proof", int64(1), ts).
			AddRow("a", "t1", "ExecuteCommand", "r", "s", audit.StatusSuccess, nil, "", int64(2), ts))

	events, err := repo.Recent(context.Background(), "r", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].ErrorCode)
	assert.Equal(t, uint32(6), *events[0].ErrorCode)
	assert.Nil(t, events[1].ErrorCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
