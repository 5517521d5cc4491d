package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/admissions-workflow/internal/application/dispatcher"
	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// Mock repositories backed by maps

type mockWorkflowRepo struct {
	mu   sync.Mutex
	defs map[string]*workflow.Definition
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{defs: make(map[string]*workflow.Definition)}
}

func cloneDef(d *workflow.Definition) *workflow.Definition {
	cp := *d
	cp.Stages = append([]workflow.Stage(nil), d.Stages...)
	cp.Transitions = append([]workflow.Transition(nil), d.Transitions...)
	return &cp
}

func (m *mockWorkflowRepo) Create(ctx context.Context, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = cloneDef(def)
	return nil
}

func (m *mockWorkflowRepo) Replace(ctx context.Context, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defs[def.ID]; !ok {
		return workflow.ErrNotFound
	}
	m.defs[def.ID] = cloneDef(def)
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id string) (*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.defs[id]; ok {
		return cloneDef(d), nil
	}
	return nil, nil
}

func (m *mockWorkflowRepo) GetByName(ctx context.Context, name string) (*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.defs {
		if d.Name == name {
			return cloneDef(d), nil
		}
	}
	return nil, nil
}

func (m *mockWorkflowRepo) List(ctx context.Context, activeOnly bool) ([]*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workflow.Definition
	for _, d := range m.defs {
		if !activeOnly || d.IsActive {
			out = append(out, cloneDef(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockWorkflowRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.defs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	d.IsActive = active
	d.UpdatedAt = at
	return nil
}

type mockApplicationRepo struct {
	mu   sync.Mutex
	apps map[string]*entity.Application
	// beforeAdvance runs before the compare, e.g. to simulate a concurrent writer
	beforeAdvance func(app *entity.Application)
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{apps: make(map[string]*entity.Application)}
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *entity.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.apps[app.ID] = &cp
	return nil
}

func (m *mockApplicationRepo) GetByID(ctx context.Context, id string) (*entity.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.apps[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *mockApplicationRepo) AdvanceStage(ctx context.Context, id, expectedStageID, newStageID string, terminal bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if m.beforeAdvance != nil {
		m.beforeAdvance(a)
	}
	if a.CurrentStageID != expectedStageID {
		return port.ErrStaleStage
	}
	a.CurrentStageID = newStageID
	a.Terminal = terminal
	a.UpdatedAt = at
	return nil
}

func (m *mockApplicationRepo) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(stageIDs))
	for _, id := range stageIDs {
		wanted[id] = true
	}
	counts := make(map[string]int)
	for _, a := range m.apps {
		if a.WorkflowID == workflowID && wanted[a.CurrentStageID] {
			counts[a.CurrentStageID]++
		}
	}
	return counts, nil
}

func (m *mockApplicationRepo) ListOpen(ctx context.Context, afterID string, limit int) ([]*entity.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Application
	for _, a := range m.apps {
		if !a.Terminal && a.ID > afterID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries map[string]workflow.History
	apps    *mockApplicationRepo
}

func newMockHistoryRepo(apps *mockApplicationRepo) *mockHistoryRepo {
	return &mockHistoryRepo{entries: make(map[string]workflow.History), apps: apps}
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *workflow.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.entries[entry.ApplicationID]
	if entry.Position != len(h)+1 {
		return port.ErrStaleStage
	}
	m.entries[entry.ApplicationID] = append(h, *entry)
	return nil
}

func (m *mockHistoryRepo) ListByApplication(ctx context.Context, applicationID string) (workflow.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(workflow.History(nil), m.entries[applicationID]...), nil
}

func (m *mockHistoryRepo) UsedTransitions(ctx context.Context, workflowID string) ([]port.TransitionUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[port.TransitionUsage]bool)
	var out []port.TransitionUsage
	for appID, h := range m.entries {
		app, _ := m.apps.GetByID(ctx, appID)
		if app == nil || app.WorkflowID != workflowID {
			continue
		}
		for i := 1; i < len(h); i++ {
			u := port.TransitionUsage{TransitionID: h[i].TransitionID, SourceStageID: h[i-1].StageID, TargetStageID: h[i].StageID}
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type mockFactRepo struct {
	mu    sync.Mutex
	facts map[string]workflow.Facts
}

func newMockFactRepo() *mockFactRepo {
	return &mockFactRepo{facts: make(map[string]workflow.Facts)}
}

func (m *mockFactRepo) Get(ctx context.Context, applicationID string) (workflow.Facts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := workflow.Facts{}
	for k, v := range m.facts[applicationID] {
		out[k] = v
	}
	return out, nil
}

func (m *mockFactRepo) Upsert(ctx context.Context, applicationID string, facts workflow.Facts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.facts[applicationID]
	if !ok {
		cur = workflow.Facts{}
		m.facts[applicationID] = cur
	}
	for k, v := range facts {
		if v == nil {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	return nil
}

type mockAuditRepo struct {
	mu      sync.Mutex
	records []*entity.AuditRecord
	err     error
}

func (m *mockAuditRepo) Create(ctx context.Context, rec *entity.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

func (m *mockAuditRepo) ListByApplication(ctx context.Context, applicationID string) ([]*entity.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AuditRecord
	for _, r := range m.records {
		if r.ApplicationID == applicationID {
			out = append(out, r)
		}
	}
	return out, nil
}

// mockTxManager runs fn directly; mocks apply writes immediately
type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type mockPermissions struct {
	roles map[string][]string
}

func (m mockPermissions) Permissions(ctx context.Context, id port.Identity) ([]string, error) {
	var perms []string
	for _, r := range id.Roles {
		perms = append(perms, m.roles[r]...)
	}
	return perms, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	facts []event.StatusChanged
	defs  []*workflow.Definition
	err   error
}

func (m *mockNotifier) NotifyStatusChanged(ctx context.Context, fact event.StatusChanged, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts, fact)
	m.defs = append(m.defs, def)
	return m.err
}

// recordingDispatcher captures published events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
	subs   map[event.Type][]string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{subs: make(map[event.Type][]string)}
}

func (d *recordingDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[eventType] = append(d.subs[eventType], name)
}

func (d *recordingDispatcher) Publish(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// sequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// steppingClock advances by one second on every call
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// gatedFacts parks the first Facts call, after the application state has been
// loaded, until release is closed.
type gatedFacts struct {
	inner   port.FactProvider
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func newGatedFacts(inner port.FactProvider) *gatedFacts {
	return &gatedFacts{inner: inner, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedFacts) Facts(ctx context.Context, applicationID string) (workflow.Facts, error) {
	facts, err := g.inner.Facts(ctx, applicationID)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.loaded)
		<-g.release
	}
	return facts, err
}
