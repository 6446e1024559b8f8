package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/store"
)

func memoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		Primary:   config.PrimaryConfig{Type: config.StoreMemory},
		Secondary: config.SecondaryConfig{Type: config.StoreMemory},
		Queue: config.QueueConfig{
			Path:        filepath.Join(t.TempDir(), "queue.db"),
			Slot:        "offline_queue",
			MaxAttempts: 3,
		},
		Connectivity: config.ConnectivityConfig{AssumeOnline: true},
		Scheduler:    config.SchedulerConfig{Enabled: true, Interval: "@every 5m"},
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, StatusIdle, m.GetStatus())
	require.NoError(t, m.Start(ctx))
	require.Error(t, m.Start(ctx))

	st := m.Status()
	require.Equal(t, StatusRunning, st.State)
	require.True(t, st.Online)
	require.NotNil(t, st.NextDrain)
	require.Equal(t, config.StoreMemory, st.PrimaryType)

	res := m.Engine().Save(ctx, "p1", store.Record{Fields: map[string]any{"xp": 1}}, 0)
	require.True(t, res.Success)

	m.Stop()
	require.Equal(t, StatusIdle, m.GetStatus())
	require.Nil(t, m.Status().NextDrain)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["progress_sync_saves_total"])
}

func TestManagerQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Connectivity.AssumeOnline = false
	cfg.Scheduler.Enabled = false

	m, err := NewManager(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))

	// memory stores never fail, so enqueue directly
	_, err = m.Engine().queue.Enqueue(ctx, "p1", store.Record{LastSaved: 5}, time.UnixMilli(5))
	require.NoError(t, err)
	m.Close()

	reopened, err := NewManager(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Start(ctx))
	require.Len(t, reopened.Engine().PendingWrites(), 1)

	reopened.Monitor().SetOnline(true)
	reopened.Engine().Wait()
	require.Empty(t, reopened.Engine().PendingWrites())
}

func TestManagerRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Secondary.Type = "tape"

	_, err := NewManager(context.Background(), cfg)
	require.ErrorContains(t, err, `unknown secondary store type "tape"`)
}
