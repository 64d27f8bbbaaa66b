package postgres

/*
Файл accounts_repo.go - хранилище записей программы в таблице accounts.

Transact реализует атомарность вызова: все записи блокируются
SELECT ... FOR UPDATE в порядке ключей, функция вызова работает с копиями,
изменившиеся записи пишутся UPDATE, и всё фиксируется одним COMMIT.
Любая ошибка приводит к ROLLBACK.
*/

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/ledger"
)

type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

var _ ledger.Store = (*AccountRepo)(nil)

func (r *AccountRepo) Allocate(ctx context.Context, rec *ledger.Record) error {
	query := `INSERT INTO accounts (key, data, deposit) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, rec.Key[:], rec.Data, int64(rec.Deposit))
	if err != nil {
		return fmt.Errorf("postgres: failed to allocate account: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ledger.ErrAccountExists
	}
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, key domain.Pubkey) (*ledger.Record, error) {
	query := `SELECT data, deposit FROM accounts WHERE key = $1`

	rec := &ledger.Record{Key: key}
	var deposit int64
	err := r.db.QueryRowContext(ctx, query, key[:]).Scan(&rec.Data, &deposit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get account: %w", err)
	}
	rec.Deposit = uint64(deposit)
	return rec, nil
}

func (r *AccountRepo) Transact(ctx context.Context, keys []domain.Pubkey, fn ledger.TxFunc) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	loaded := make(map[domain.Pubkey]*ledger.Record, len(keys))
	original := make(map[domain.Pubkey][]byte, len(keys))

	// Один порядок блокировок для всех транзакций
	for _, key := range ledger.SortedKeys(keys) {
		var data []byte
		var deposit int64
		err = tx.QueryRowContext(ctx,
			`SELECT data, deposit FROM accounts WHERE key = $1 FOR UPDATE`, key[:],
		).Scan(&data, &deposit)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			continue
		}
		if err != nil {
			return fmt.Errorf("postgres: lock account: %w", err)
		}
		loaded[key] = &ledger.Record{Key: key, Data: data, Deposit: uint64(deposit)}
		original[key] = bytes.Clone(data)
	}

	if err = fn(ctx, loaded); err != nil {
		return err
	}

	for _, key := range ledger.SortedKeys(keys) {
		rec, ok := loaded[key]
		if !ok || bytes.Equal(original[key], rec.Data) {
			continue
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE accounts SET data = $1, updated_at = NOW() WHERE key = $2`, rec.Data, key[:],
		); err != nil {
			return fmt.Errorf("postgres: update account: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (r *AccountRepo) ScanBySize(ctx context.Context, minSize int, fn func(*ledger.Record) error) error {
	query := `SELECT key, data, deposit FROM accounts WHERE octet_length(data) >= $1`

	rows, err := r.db.QueryContext(ctx, query, minSize)
	if err != nil {
		return fmt.Errorf("postgres: scan accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rawKey, data []byte
		var deposit int64
		if err := rows.Scan(&rawKey, &data, &deposit); err != nil {
			return fmt.Errorf("postgres: scan row: %w", err)
		}
		key, err := domain.PubkeyFromBytes(rawKey)
		if err != nil {
			return fmt.Errorf("postgres: bad account key: %w", err)
		}
		if err := fn(&ledger.Record{Key: key, Data: data, Deposit: uint64(deposit)}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Ping проверяет доступность базы при старте
func (r *AccountRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
