package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xela07ax/roby-guard/internal/audit"
)

type JournalRepo struct {
	db *sql.DB
}

func NewJournalRepo(db *sql.DB) *JournalRepo {
	return &JournalRepo{db: db}
}

var _ audit.Storage = (*JournalRepo)(nil)

// Количество колонок в таблице invocation_journal
const journalFields = 10

func (r *JournalRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	var placeholders strings.Builder
	vals := make([]any, 0, len(events)*journalFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			placeholders.WriteString(",")
		}
		p := i * journalFields
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		var code sql.NullInt64
		if e.ErrorCode != nil {
			code = sql.NullInt64{Int64: int64(*e.ErrorCode), Valid: true}
		}
		vals = append(vals,
			e.ID, e.TraceID, e.Instruction, e.Robot, e.Signer,
			e.Status, code, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := "INSERT INTO invocation_journal (id, trace_id, instruction, robot, signer, status, error_code, error, duration_ms, timestamp) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write journal batch: %w", err)
	}
	return nil
}

// Recent возвращает последние события по роботу, новые первыми.
func (r *JournalRepo) Recent(ctx context.Context, robot string, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, trace_id, instruction, robot, signer, status, error_code, error, duration_ms, timestamp
		FROM invocation_journal
		WHERE robot = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, robot, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query journal: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, limit)
	for rows.Next() {
		var e audit.Event
		var code sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Instruction, &e.Robot, &e.Signer,
			&e.Status, &code, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan journal: %w", err)
		}
		if code.Valid {
			c := uint32(code.Int64)
			e.ErrorCode = &c
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
