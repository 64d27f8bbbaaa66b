package ledger

import (
	"bytes"
	"context"
	"sync"

	"github.com/xela07ax/roby-guard/internal/domain"
)

// MemoryStore: хранилище в памяти для dev-режима и тестов.
// Транзакции сериализуются одним мьютексом.
type MemoryStore struct {
	mu      sync.Mutex
	records map[domain.Pubkey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.Pubkey]*Record)}
}

func (s *MemoryStore) Allocate(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Key]; ok {
		return ErrAccountExists
	}
	s.records[rec.Key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key domain.Pubkey) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Transact(ctx context.Context, keys []domain.Pubkey, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	loaded := make(map[domain.Pubkey]*Record, len(keys))
	for _, k := range SortedKeys(keys) {
		if rec, ok := s.records[k]; ok {
			loaded[k] = rec.Clone()
		}
	}

	if err := fn(ctx, loaded); err != nil {
		return err
	}

	for k, rec := range loaded {
		if !bytes.Equal(s.records[k].Data, rec.Data) {
			s.records[k].Data = bytes.Clone(rec.Data)
		}
	}
	return nil
}

func (s *MemoryStore) ScanBySize(ctx context.Context, minSize int, fn func(*Record) error) error {
	s.mu.Lock()
	snapshot := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if len(rec.Data) >= minSize {
			snapshot = append(snapshot, rec.Clone())
		}
	}
	s.mu.Unlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
