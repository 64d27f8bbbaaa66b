package audit

/*
Файл journal.go - журнал вызовов: асинхронная пакетная запись каждой попытки
исполнения транзакции в хранилище (Postgres).

- Log не блокирует горячий путь шлюза: событие уходит в буферизированный канал,
  при переполнении событие сбрасывается в zap (Load Shedding).
- Воркер копит пачку и пишет ее по таймеру или при достижении BatchSize.
- Stop закрывает вход, вычитывает канал до конца и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются события.
type Storage interface {
	WriteBatch(ctx context.Context, events []Event) error
}

type Auditor interface {
	Log(event Event)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
}

type Journal struct {
	ch     chan Event
	repo   Storage
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex // защищает closed и закрытие ch
	closed bool
}

func NewJournal(repo Storage, opts Options, logger *zap.Logger) *Journal {
	opts.withDefaults()
	return &Journal{
		ch:     make(chan Event, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case j.ch <- event:
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("robot", event.Robot),
			zap.String("trace_id", event.TraceID),
			zap.String("status", event.Status),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Error(err), zap.Int("events", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Discard: Auditor без хранилища, для dev-режима и тестов.
type Discard struct{}

func (Discard) Log(Event) {}

// Pending: число событий в буфере, еще не переданных воркеру.
func (j *Journal) Pending() int {
	return len(j.ch)
}
