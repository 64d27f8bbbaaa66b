package engine

/*
Файл estop.go - реестр аварийных остановок шлюза.

Источник правды - флаг emergency_stop в записи робота. Реестр держит
локальную копию (L1) множества остановленных роботов, чтобы отклонять
ExecuteCommand без похода в базу, и разносит изменения между инстансами
через Redis: множество roby:robots:estop_set (L2) и канал сигналов.

Локальная копия - только ускорение: отказ по ней совпадает с тем, что
вернуло бы ядро (RobotNotActive), а снятие остановки всегда проходит через ядро.
Попадание сверяется с записью (Confirm), копия пересобирается по таймеру.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/infra"
	"github.com/xela07ax/roby-guard/internal/ledger"
)

var errRobotStopped = fmt.Errorf("%w: emergency stop is latched", domain.ErrRobotNotActive)

type StopRegistry struct {
	mu      sync.RWMutex
	stopped map[domain.Pubkey]struct{}

	rdb     *redis.Client // nil - режим одного инстанса
	store   ledger.Store
	metrics *Metrics
	logger  *zap.Logger
}

func NewStopRegistry(rdb *redis.Client, store ledger.Store, metrics *Metrics, logger *zap.Logger) *StopRegistry {
	return &StopRegistry{
		stopped: make(map[domain.Pubkey]struct{}),
		rdb:     rdb,
		store:   store,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "estop")),
	}
}

// IsStopped: максимально быстрый метод для проверки в Hot Path
func (r *StopRegistry) IsStopped(robot domain.Pubkey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stopped[robot]
	return ok
}

// Init перечитывает записи роботов из хранилища и прогревает Redis.
func (r *StopRegistry) Init(ctx context.Context) error {
	var ids []domain.Pubkey
	err := r.store.ScanBySize(ctx, domain.RobotLen, func(rec *ledger.Record) error {
		robot, err := domain.UnpackRobot(rec.Data)
		if err != nil {
			// слот нужного размера, но не запись робота
			return nil
		}
		if robot.Initialized && robot.EmergencyStop {
			ids = append(ids, rec.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan robots: %w", err)
	}

	r.replace(ids)
	r.logger.Info("emergency stop registry synced", zap.Int("stopped", len(ids)))
	return r.warmup(ctx, ids)
}

// warmup заливает L2, если множество в Redis пусто.
// SetNX гарантирует, что этим занимается один инстанс.
func (r *StopRegistry) warmup(ctx context.Context, ids []domain.Pubkey) error {
	if r.rdb == nil || len(ids) == 0 {
		return nil
	}

	ok, err := r.rdb.SetNX(ctx, infra.GetWarmupLockKey("estop"), "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // либо ошибка сети, либо другой инстанс уже греет
	}

	count, err := r.rdb.SCard(ctx, infra.RedisKeyStoppedRobots).Result()
	if err != nil {
		r.logger.Warn("could not check Redis set size, proceeding with warm-up", zap.Error(err))
		count = 0
	}
	if count > 0 {
		return nil
	}

	pipe := r.rdb.Pipeline()
	for _, id := range ids {
		pipe.SAdd(ctx, infra.RedisKeyStoppedRobots, id.String())
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Publish применяет изменение локально и рассылает его остальным инстансам.
// Вызывается шлюзом только после фиксации EmergencyStop / Resume.
func (r *StopRegistry) Publish(ctx context.Context, robot domain.Pubkey, stopped bool) error {
	r.set(robot, stopped)
	if r.rdb == nil {
		return nil
	}

	pipe := r.rdb.TxPipeline()
	if stopped {
		pipe.SAdd(ctx, infra.RedisKeyStoppedRobots, robot.String())
	} else {
		pipe.SRem(ctx, infra.RedisKeyStoppedRobots, robot.String())
	}
	pipe.Publish(ctx, infra.RedisChanEmergencyStop, formatSignal(robot.String(), stopped))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish emergency stop: %w", err)
	}
	return nil
}

// StartListener подписывается на сигналы других инстансов. Блокирует до отмены ctx.
func (r *StopRegistry) StartListener(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	ListenStateResilient(ctx, r.rdb, r.logger, infra.RedisChanEmergencyStop,
		func() error { return r.Init(ctx) },
		func(id string, stopped bool) {
			robot, err := domain.ParsePubkey(id)
			if err != nil {
				r.logger.Error("invalid robot in signal", zap.String("id", id), zap.Error(err))
				return
			}
			r.set(robot, stopped)
		},
	)
}

// Confirm сверяет попадание в локальную копию с записью робота. Если латч
// уже снят (потерянный сигнал Resume), запись удаляется из копии.
// При ошибке чтения остановка считается действующей.
func (r *StopRegistry) Confirm(ctx context.Context, robot domain.Pubkey) bool {
	rec, err := r.store.Get(ctx, robot)
	if err != nil {
		if !errors.Is(err, ledger.ErrAccountNotFound) {
			r.logger.Warn("confirm emergency stop", zap.Stringer("robot", robot), zap.Error(err))
			return true
		}
		r.set(robot, false)
		return false
	}
	state, err := domain.UnpackRobot(rec.Data)
	if err == nil && state.Initialized && state.EmergencyStop {
		return true
	}
	r.logger.Info("stale emergency stop dropped", zap.Stringer("robot", robot))
	r.set(robot, false)
	return false
}

// StartResync периодически перечитывает хранилище. Блокирует до отмены ctx.
func (r *StopRegistry) StartResync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Init(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("emergency stop resync failed", zap.Error(err))
			}
		}
	}
}

// Members возвращает множество L2 (для диагностики).
func (r *StopRegistry) Members(ctx context.Context) ([]string, error) {
	if r.rdb == nil {
		return nil, errors.New("estop: redis is not configured")
	}
	return r.rdb.SMembers(ctx, infra.RedisKeyStoppedRobots).Result()
}

func (r *StopRegistry) set(robot domain.Pubkey, stopped bool) {
	r.mu.Lock()
	if stopped {
		r.stopped[robot] = struct{}{}
	} else {
		delete(r.stopped, robot)
	}
	n := len(r.stopped)
	r.mu.Unlock()
	r.observe(n)
}

func (r *StopRegistry) replace(ids []domain.Pubkey) {
	next := make(map[domain.Pubkey]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	r.mu.Lock()
	r.stopped = next
	r.mu.Unlock()
	r.observe(len(ids))
}

func (r *StopRegistry) observe(n int) {
	if r.metrics != nil {
		r.metrics.StoppedRobots.Set(float64(n))
	}
}
