package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/service"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

type mockApplications struct {
	apps  []*entity.Application
	calls int
	err   error
}

func (m *mockApplications) Create(ctx context.Context, app *entity.Application) error { return nil }
func (m *mockApplications) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	return nil, nil
}
func (m *mockApplications) AdvanceStage(ctx context.Context, id, expected, next string, terminal bool, at time.Time) error {
	return nil
}
func (m *mockApplications) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int, error) {
	return nil, nil
}

func (m *mockApplications) ListOpen(ctx context.Context, afterID string, limit int) ([]*entity.Application, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*entity.Application
	for _, a := range m.apps {
		if a.ID > afterID && !a.Terminal {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockTicker struct {
	mu      sync.Mutex
	ticked  []string
	applied map[string]int
	errs    map[string]error
	count   atomic.Int32
}

func (m *mockTicker) TickAutomatic(ctx context.Context, applicationID string) (*service.TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count.Add(1)
	m.ticked = append(m.ticked, applicationID)
	if err := m.errs[applicationID]; err != nil {
		return nil, err
	}
	res := &service.TickResult{}
	for i := 0; i < m.applied[applicationID]; i++ {
		res.Applied = append(res.Applied, workflow.HistoryEntry{ApplicationID: applicationID})
	}
	return res, nil
}

func openApps(n int) []*entity.Application {
	apps := make([]*entity.Application, n)
	for i := range apps {
		apps[i] = &entity.Application{ID: fmt.Sprintf("app-%02d", i+1)}
	}
	return apps
}

func TestAutoAdvanceWorker_SweepOnce(t *testing.T) {
	apps := &mockApplications{apps: openApps(5)}
	apps.apps = append(apps.apps, &entity.Application{ID: "app-99", Terminal: true})
	ticker := &mockTicker{
		applied: map[string]int{"app-02": 2, "app-04": 1},
		errs:    map[string]error{"app-03": errors.New("boom")},
	}

	w := NewAutoAdvanceWorker(AutoAdvanceConfig{Interval: time.Hour, BatchSize: 2}, apps, ticker, zap.NewNop())
	stats, err := w.SweepOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"app-01", "app-02", "app-03", "app-04", "app-05"}, ticker.ticked)
	assert.Equal(t, SweepStats{Scanned: 5, Advanced: 2, Applied: 3, Failed: 1}, stats)
	assert.Equal(t, 3, apps.calls)
}

func TestAutoAdvanceWorker_SweepOnceErrors(t *testing.T) {
	t.Run("list failure", func(t *testing.T) {
		apps := &mockApplications{err: errors.New("database is locked")}
		w := NewAutoAdvanceWorker(AutoAdvanceConfig{}, apps, &mockTicker{}, zap.NewNop())
		_, err := w.SweepOnce(context.Background())
		assert.ErrorContains(t, err, "database is locked")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := NewAutoAdvanceWorker(AutoAdvanceConfig{}, &mockApplications{apps: openApps(1)}, &mockTicker{}, zap.NewNop())
		_, err := w.SweepOnce(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestAutoAdvanceWorker_Lifecycle(t *testing.T) {
	ticker := &mockTicker{}
	w := NewAutoAdvanceWorker(AutoAdvanceConfig{Interval: 5 * time.Millisecond}, &mockApplications{apps: openApps(1)}, ticker, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return ticker.count.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	at, _, _ := w.LastSweep()
	assert.False(t, at.IsZero())
}

type stubWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
	order    *[]string
}

func (s *stubWorker) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *stubWorker) Stop() error {
	s.stopped = true
	*s.order = append(*s.order, s.name)
	return nil
}

func (s *stubWorker) Name() string { return s.name }

func TestWorkerManager(t *testing.T) {
	var order []string
	a := &stubWorker{name: "a", order: &order}
	b := &stubWorker{name: "b", order: &order}
	broken := &stubWorker{name: "broken", startErr: errors.New("no"), order: &order}

	m := NewWorkerManager(zap.NewNop())
	m.Register(a)
	m.Register(broken)
	m.Register(b)
	assert.Equal(t, 3, m.GetWorkerCount())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))
	assert.True(t, a.started)
	assert.True(t, b.started)

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"b", "a"}, order)
	assert.False(t, broken.stopped)

	require.NoError(t, m.StopAll())
}
