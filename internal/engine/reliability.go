package engine

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type ReliabilityConfig struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration // через сколько открытый предохранитель пробует закрыться
	MaxFailures   uint32        // подряд идущих сбоев до размыкания
	RetryAttempts uint
	RetryDelay    time.Duration
	CallTimeout   time.Duration
}

func (c *ReliabilityConfig) withDefaults() {
	if c.Name == "" {
		c.Name = "ledger-store"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 20 * time.Millisecond
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
}

// CommitGuard оборачивает обращения к хранилищу: повторы для конфликтов
// сериализации и предохранитель от лавины сбоев базы.
// Ответы ядра (ошибки программы) проходят насквозь и не считаются сбоями.
type CommitGuard struct {
	cfg       ReliabilityConfig
	cb        *gobreaker.CircuitBreaker
	retryable func(error) bool
	logger    *zap.Logger
}

func NewCommitGuard(cfg ReliabilityConfig, retryable func(error) bool, metrics *Metrics, logger *zap.Logger) *CommitGuard {
	cfg.withDefaults()
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	g := &CommitGuard{cfg: cfg, retryable: retryable, logger: logger.With(zap.String("mod", "commit-guard"))}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isOutcome,
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
			if metrics != nil {
				metrics.setBreakerState(name, to)
			}
		},
	})
	if metrics != nil {
		metrics.setBreakerState(cfg.Name, gobreaker.StateClosed)
	}
	return g
}

// Do выполняет fn под предохранителем с повторами.
func (g *CommitGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.cfg.RetryAttempts),
			retry.Delay(g.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				if g.retryable(err) {
					g.logger.Debug("retrying store transaction", zap.Error(err))
					return true
				}
				return false
			}),
		)
		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
			return fn(tCtx)
		})
	})
	return err
}

func (g *CommitGuard) State() gobreaker.State {
	return g.cb.State()
}
