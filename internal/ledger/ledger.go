// Package ledger - хранилище записей (аккаунтов), которым владеет программа.
//
// Ключ, присутствующий в хранилище, считается принадлежащим программе;
// отсутствующие ключи - обычные идентичности (подписанты, получатели).
package ledger

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/xela07ax/roby-guard/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrAccountExists   = errors.New("ledger: account already allocated")
)

// Record: слот фиксированного размера и депозит, внесенный при выделении.
type Record struct {
	Key     domain.Pubkey
	Data    []byte
	Deposit uint64
}

// Clone — глубокая копия, чтобы вызывающий не держал ссылку на данные хранилища.
func (r *Record) Clone() *Record {
	return &Record{Key: r.Key, Data: bytes.Clone(r.Data), Deposit: r.Deposit}
}

// Exempt выносит вердикт об освобождении от платы: депозит покрывает размер слота.
func (r *Record) Exempt(depositPerByte uint64) bool {
	size := uint64(len(r.Data))
	if depositPerByte != 0 && size > ^uint64(0)/depositPerByte {
		return false
	}
	return r.Deposit >= size*depositPerByte
}

// TxFunc получает загруженные записи (только существующие ключи) и может
// менять их Data на месте. Ошибка откатывает всю транзакцию.
type TxFunc func(ctx context.Context, records map[domain.Pubkey]*Record) error

// Store: контракт хранилища, который реализуют memory и postgres.
type Store interface {
	Allocate(ctx context.Context, rec *Record) error
	Get(ctx context.Context, key domain.Pubkey) (*Record, error)
	// Transact блокирует записи keys, вызывает fn и атомарно сохраняет
	// изменившиеся записи, если fn вернула nil.
	Transact(ctx context.Context, keys []domain.Pubkey, fn TxFunc) error
	// ScanBySize обходит записи с размером слота не меньше minSize.
	ScanBySize(ctx context.Context, minSize int, fn func(*Record) error) error
}

// SortedKeys — ключи без повторов в порядке байтового сравнения.
// Единый порядок блокировок исключает взаимоблокировки между транзакциями.
func SortedKeys(keys []domain.Pubkey) []domain.Pubkey {
	seen := make(map[domain.Pubkey]struct{}, len(keys))
	out := make([]domain.Pubkey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b domain.Pubkey) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}
