package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
)

var errTransient = errors.New("serialization failure")

func newTestGuard(metrics *Metrics) *CommitGuard {
	return NewCommitGuard(ReliabilityConfig{
		Name:          "test",
		MaxFailures:   2,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		Timeout:       time.Minute,
	}, func(err error) bool { return errors.Is(err, errTransient) }, metrics, zap.NewNop())
}

func TestCommitGuard_RetriesTransientErrors(t *testing.T) {
	g := newTestGuard(nil)
	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCommitGuard_ProgramErrorsPassThrough(t *testing.T) {
	g := newTestGuard(nil)
	for i := 0; i < 5; i++ {
		calls := 0
		err := g.Do(context.Background(), func(context.Context) error {
			calls++
			return domain.ErrNotAuthorized
		})
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		assert.Equal(t, 1, calls, "program errors are not retried")
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestCommitGuard_OpensOnStoreFailures(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	g := newTestGuard(metrics)
	down := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, g.Do(context.Background(), func(context.Context) error { return down }), down)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test")))

	err := g.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, KindUnavailable, Classify(err))
}
