package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/ledger"
	"github.com/xela07ax/roby-guard/internal/merkle"
)

func TestStopRegistry_InitFromStore(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	put := func(key domain.Pubkey, stopped bool) {
		robot := domain.NewRobot(domain.Pubkey{1}, domain.Pubkey{2}, key, merkle.Hash{}, "")
		robot.EmergencyStop = stopped
		data := make([]byte, domain.RobotLen)
		require.NoError(t, robot.Pack(data))
		require.NoError(t, store.Allocate(ctx, &ledger.Record{Key: key, Data: data}))
	}
	put(domain.Pubkey{10}, true)
	put(domain.Pubkey{11}, false)
	// запись нужного размера, но не робот
	garbage := make([]byte, domain.RobotLen)
	garbage[0] = 7
	require.NoError(t, store.Allocate(ctx, &ledger.Record{Key: domain.Pubkey{12}, Data: garbage}))

	metrics := NewMetrics(prometheus.NewRegistry())
	reg := NewStopRegistry(nil, store, metrics, zap.NewNop())
	require.NoError(t, reg.Init(ctx))

	assert.True(t, reg.IsStopped(domain.Pubkey{10}))
	assert.False(t, reg.IsStopped(domain.Pubkey{11}))
	assert.False(t, reg.IsStopped(domain.Pubkey{12}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoppedRobots))

	require.NoError(t, reg.Publish(ctx, domain.Pubkey{10}, false))
	assert.False(t, reg.IsStopped(domain.Pubkey{10}))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.StoppedRobots))

	_, err := reg.Members(ctx)
	assert.Error(t, err)
}

func TestStopRegistry_ConfirmAndResync(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	key := domain.Pubkey{20}

	robot := domain.NewRobot(domain.Pubkey{1}, domain.Pubkey{2}, key, merkle.Hash{}, "")
	data := make([]byte, domain.RobotLen)
	require.NoError(t, robot.Pack(data))
	require.NoError(t, store.Allocate(ctx, &ledger.Record{Key: key, Data: data}))

	reg := NewStopRegistry(nil, store, nil, zap.NewNop())

	// сигнал Resume потерян: локальная копия отстала от записи
	reg.set(key, true)
	assert.False(t, reg.Confirm(ctx, key))
	assert.False(t, reg.IsStopped(key))

	reg.set(domain.Pubkey{21}, true)
	assert.False(t, reg.Confirm(ctx, domain.Pubkey{21}))

	robot.EmergencyStop = true
	require.NoError(t, robot.Pack(data))
	require.NoError(t, store.Transact(ctx, []domain.Pubkey{key}, func(_ context.Context, recs map[domain.Pubkey]*ledger.Record) error {
		copy(recs[key].Data, data)
		return nil
	}))
	reg.set(key, true)
	assert.True(t, reg.Confirm(ctx, key))

	// таймер пересобирает копию из хранилища
	reg.set(key, false)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		reg.StartResync(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return reg.IsStopped(key) }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestParseSignal(t *testing.T) {
	id, on, ok := parseSignal("ab:on")
	assert.True(t, ok)
	assert.Equal(t, "ab", id)
	assert.True(t, on)

	id, on, ok = parseSignal(formatSignal("cd", false))
	assert.True(t, ok)
	assert.Equal(t, "cd", id)
	assert.False(t, on)

	for _, bad := range []string{"", "ab", ":on", "ab:maybe", "a:b:on"} {
		_, _, ok := parseSignal(bad)
		assert.False(t, ok, bad)
	}
}

func TestMemoryReplayGuard(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryReplayGuard()

	fresh, err := g.Claim(ctx, "tx", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, _ = g.Claim(ctx, "tx", time.Minute)
	assert.False(t, fresh)

	require.NoError(t, g.Release(ctx, "tx"))
	fresh, _ = g.Claim(ctx, "tx", time.Minute)
	assert.True(t, fresh)

	base := time.Now()
	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh, _ = g.Claim(ctx, "tx", time.Minute)
	assert.True(t, fresh, "expired marks are forgotten")
}
