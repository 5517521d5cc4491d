package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/admissions-workflow/internal/application/dispatcher"
	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// DefaultChainLimit bounds how many automatic transitions one tick may apply
const DefaultChainLimit = 32

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkflowService orchestrates workflow definitions and application progress
type WorkflowService interface {
	DefineWorkflow(ctx context.Context, sub workflow.Submission) (*DefineResult, error)
	UpdateWorkflow(ctx context.Context, id string, sub workflow.Submission) (*DefineResult, error)
	DeactivateWorkflow(ctx context.Context, id string) (*workflow.Definition, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error)
	ListWorkflows(ctx context.Context, activeOnly bool) ([]*workflow.Definition, error)

	StartApplication(ctx context.Context, req StartRequest) (*entity.Application, error)
	GetApplication(ctx context.Context, id string) (*entity.Application, error)
	GetLegalNextSteps(ctx context.Context, applicationID string) ([]workflow.Transition, error)
	AdvanceApplication(ctx context.Context, req AdvanceRequest) (*workflow.HistoryEntry, error)
	TickAutomatic(ctx context.Context, applicationID string) (*TickResult, error)
	GetHistory(ctx context.Context, applicationID string) (workflow.History, error)
	SetFacts(ctx context.Context, applicationID string, facts workflow.Facts) (workflow.Facts, error)
	ExportHistory(ctx context.Context, applicationID string, w io.Writer) error
}

// DefineResult is a persisted definition plus the non-fatal findings about it
type DefineResult struct {
	Definition *workflow.Definition      `json:"workflow"`
	Warnings   []workflow.ValidationError `json:"warnings,omitempty"`
}

// StartRequest creates an application at the initial stage of a workflow
type StartRequest struct {
	WorkflowID  string
	ApplicantID string
	// ApplicationID is optional; a uuid is assigned when empty
	ApplicationID string
	// Caller is recorded as the actor of the first entry. An empty ActorID
	// records the system.
	Caller port.Identity
}

// AdvanceRequest applies a manual transition on behalf of Caller
type AdvanceRequest struct {
	ApplicationID string
	TransitionID  string
	Caller        port.Identity
}

// TickResult lists the automatic transitions applied by one tick, in order
type TickResult struct {
	Applied []workflow.HistoryEntry `json:"applied"`
	// Ambiguous holds the transition ids of every step where more than one
	// automatic transition qualified
	Ambiguous [][]string `json:"ambiguous,omitempty"`
	// LimitReached is set when the chain limit stopped the tick while further
	// automatic transitions were still possible
	LimitReached bool `json:"limit_reached"`
}

// Options configures the workflow service
type Options struct {
	ChainLimit int
	Now        func() time.Time
	NewID      func() string
}

// Dependencies groups the collaborators of the workflow service
type Dependencies struct {
	Workflows    port.WorkflowRepository
	Applications port.ApplicationRepository
	History      port.HistoryRepository
	Facts        port.FactRepository
	FactProvider port.FactProvider
	Permissions  port.PermissionProvider
	Exporter     port.HistoryExporter
	TxManager    port.TransactionManager
	Dispatcher   dispatcher.Dispatcher
	Engine       *workflow.Engine
	Logger       Logger
}

type workflowServiceImpl struct {
	workflows    port.WorkflowRepository
	applications port.ApplicationRepository
	history      port.HistoryRepository
	facts        port.FactRepository
	factProvider port.FactProvider
	permissions  port.PermissionProvider
	exporter     port.HistoryExporter
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	engine       *workflow.Engine
	logger       Logger

	locks      *keyedMutex
	chainLimit int
	now        func() time.Time
	newID      func() string
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(deps Dependencies, opts Options) WorkflowService {
	s := &workflowServiceImpl{
		workflows:    deps.Workflows,
		applications: deps.Applications,
		history:      deps.History,
		facts:        deps.Facts,
		factProvider: deps.FactProvider,
		permissions:  deps.Permissions,
		exporter:     deps.Exporter,
		txManager:    deps.TxManager,
		dispatcher:   deps.Dispatcher,
		engine:       deps.Engine,
		logger:       deps.Logger,
		locks:        newKeyedMutex(),
		chainLimit:   opts.ChainLimit,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if s.chainLimit <= 0 {
		s.chainLimit = DefaultChainLimit
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.engine == nil {
		s.engine = workflow.NewEngine(workflow.WithClock(s.now), workflow.WithIDGenerator(s.newID))
	}
	if s.factProvider == nil && s.facts != nil {
		s.factProvider = repoFactProvider{s.facts}
	}
	return s
}

// repoFactProvider adapts a FactRepository to the FactProvider port
type repoFactProvider struct {
	repo port.FactRepository
}

func (p repoFactProvider) Facts(ctx context.Context, applicationID string) (workflow.Facts, error) {
	return p.repo.Get(ctx, applicationID)
}

// prepare resolves temp ids and runs field and graph validation over a submission
func (s *workflowServiceImpl) prepare(sub workflow.Submission) ([]workflow.Stage, []workflow.Transition, workflow.ValidationResult, error) {
	errs := sub.CheckFields()

	stages, transitions, resolveErrs := workflow.Resolve(sub.Stages, sub.Transitions, s.newID)
	errs = append(errs, resolveErrs...)

	result := workflow.Validate(stages, transitions)
	errs = append(errs, result.Errors...)

	if len(errs) > 0 {
		return nil, nil, result, &workflow.ValidationFailedError{Errors: errs, Warnings: result.Warnings}
	}
	return stages, transitions, result, nil
}

// DefineWorkflow validates and persists a new workflow definition
func (s *workflowServiceImpl) DefineWorkflow(ctx context.Context, sub workflow.Submission) (*DefineResult, error) {
	stages, transitions, result, err := s.prepare(sub)
	if err != nil {
		s.logger.Info("Workflow submission rejected", "name", sub.Name, "error", err)
		return nil, err
	}

	now := s.now()
	def := &workflow.Definition{
		ID:              s.newID(),
		Name:            sub.Name,
		ApplicationType: sub.ApplicationType,
		IsActive:        true,
		Version:         1,
		Stages:          stages,
		Transitions:     transitions,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.workflows.GetByName(txCtx, def.Name)
		if err != nil {
			return fmt.Errorf("check workflow name: %w", err)
		}
		if existing != nil {
			return &workflow.ConflictError{Reason: fmt.Sprintf("workflow name %q already exists", def.Name)}
		}
		if err := s.workflows.Create(txCtx, def); err != nil {
			return fmt.Errorf("create workflow: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to define workflow", "error", err, "name", def.Name)
		return nil, err
	}

	s.logWarnings(def, result.Warnings)
	s.emit(ctx, event.NewEvent(event.TypeWorkflowDefined, def.ID, "", map[string]interface{}{
		event.KeyVersion: def.Version,
	}))

	s.logger.Info("Workflow defined", "id", def.ID, "name", def.Name, "stages", len(def.Stages))
	return &DefineResult{Definition: def, Warnings: result.Warnings}, nil
}

// UpdateWorkflow replaces the stage graph of a workflow after checking that
// the new graph is valid and compatible with live applications and history.
func (s *workflowServiceImpl) UpdateWorkflow(ctx context.Context, id string, sub workflow.Submission) (*DefineResult, error) {
	stages, transitions, result, err := s.prepare(sub)
	if err != nil {
		s.logger.Info("Workflow update rejected", "id", id, "error", err)
		return nil, err
	}

	var def *workflow.Definition
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.workflows.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get workflow: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("workflow %s: %w", id, workflow.ErrNotFound)
		}
		if sub.Version != 0 && sub.Version != existing.Version {
			return &workflow.ConflictError{
				Reason: fmt.Sprintf("workflow is at version %d, update was based on version %d", existing.Version, sub.Version),
			}
		}

		if sub.Name != existing.Name {
			clash, err := s.workflows.GetByName(txCtx, sub.Name)
			if err != nil {
				return fmt.Errorf("check workflow name: %w", err)
			}
			if clash != nil && clash.ID != existing.ID {
				return &workflow.ConflictError{Reason: fmt.Sprintf("workflow name %q already exists", sub.Name)}
			}
		}

		next := &workflow.Definition{
			ID:              existing.ID,
			Name:            sub.Name,
			ApplicationType: sub.ApplicationType,
			IsActive:        existing.IsActive,
			Version:         existing.Version + 1,
			Stages:          stages,
			Transitions:     transitions,
			CreatedAt:       existing.CreatedAt,
			UpdatedAt:       s.now(),
		}

		if err := s.checkCompatible(txCtx, existing, next); err != nil {
			return err
		}
		if err := s.workflows.Replace(txCtx, next); err != nil {
			return fmt.Errorf("replace workflow: %w", err)
		}
		def = next
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "id", id)
		return nil, err
	}

	s.logWarnings(def, result.Warnings)
	s.emit(ctx, event.NewEvent(event.TypeWorkflowUpdated, def.ID, "", map[string]interface{}{
		event.KeyVersion: def.Version,
	}))

	s.logger.Info("Workflow updated", "id", def.ID, "version", def.Version)
	return &DefineResult{Definition: def, Warnings: result.Warnings}, nil
}

// checkCompatible rejects updates that would strand an application at a
// removed stage or change the meaning of a transition history refers to.
func (s *workflowServiceImpl) checkCompatible(ctx context.Context, prev, next *workflow.Definition) error {
	var removed []string
	for _, st := range prev.Stages {
		if _, ok := next.Stage(st.ID); !ok {
			removed = append(removed, st.ID)
		}
	}
	if len(removed) > 0 {
		counts, err := s.applications.CountByStage(ctx, prev.ID, removed)
		if err != nil {
			return fmt.Errorf("count applications by stage: %w", err)
		}
		var occupied []string
		for _, id := range removed {
			if counts[id] > 0 {
				occupied = append(occupied, id)
			}
		}
		if len(occupied) > 0 {
			return &workflow.ConflictError{
				Reason:   "removed stages are the current stage of existing applications",
				StageIDs: occupied,
			}
		}
	}

	usages, err := s.history.UsedTransitions(ctx, prev.ID)
	if err != nil {
		return fmt.Errorf("list used transitions: %w", err)
	}

	incompatible := make(map[string]struct{})
	for _, u := range usages {
		t, ok := next.Transition(u.TransitionID)
		if !ok {
			continue
		}
		if t.SourceStageID != u.SourceStageID || t.TargetStageID != u.TargetStageID {
			incompatible[u.TransitionID] = struct{}{}
			continue
		}
		if old, ok := prev.Transition(u.TransitionID); ok && !workflow.ConditionsSubset(t.Conditions, old.Conditions) {
			incompatible[u.TransitionID] = struct{}{}
		}
	}
	if len(incompatible) > 0 {
		ids := make([]string, 0, len(incompatible))
		for id := range incompatible {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return &workflow.ConflictError{
			Reason:        "transitions referenced by history would change endpoints or gain conditions",
			TransitionIDs: ids,
		}
	}
	return nil
}

// DeactivateWorkflow stops new applications from starting on a workflow
func (s *workflowServiceImpl) DeactivateWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	def, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return def, nil
	}

	now := s.now()
	if err := s.workflows.SetActive(ctx, id, false, now); err != nil {
		s.logger.Error("Failed to deactivate workflow", "error", err, "id", id)
		return nil, fmt.Errorf("deactivate workflow: %w", err)
	}
	def.IsActive = false
	def.UpdatedAt = now

	s.emit(ctx, event.NewEvent(event.TypeWorkflowDeactivated, def.ID, "", nil))
	s.logger.Info("Workflow deactivated", "id", id)
	return def, nil
}

// GetWorkflow retrieves a workflow definition by id
func (s *workflowServiceImpl) GetWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	def, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get workflow", "error", err, "id", id)
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("workflow %s: %w", id, workflow.ErrNotFound)
	}
	return def, nil
}

// ListWorkflows lists workflow definitions, optionally only active ones
func (s *workflowServiceImpl) ListWorkflows(ctx context.Context, activeOnly bool) ([]*workflow.Definition, error) {
	defs, err := s.workflows.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("Failed to list workflows", "error", err)
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return defs, nil
}

// StartApplication creates an application with its first history entry
func (s *workflowServiceImpl) StartApplication(ctx context.Context, req StartRequest) (*entity.Application, error) {
	if req.ApplicantID == "" {
		return nil, &workflow.ValidationFailedError{Errors: []workflow.ValidationError{{
			Path: "applicant_id", Code: workflow.CodeRequired, Message: "applicant id is required",
		}}}
	}

	def, err := s.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, fmt.Errorf("workflow %s: %w", def.ID, workflow.ErrInactiveWorkflow)
	}

	appID := req.ApplicationID
	if appID == "" {
		appID = s.newID()
	}

	by := workflow.System()
	if req.Caller.ActorID != "" {
		by = workflow.Human(req.Caller.ActorID)
	}

	entry, err := s.engine.Start(def, appID, by)
	if err != nil {
		return nil, err
	}

	app := &entity.Application{
		ID:             appID,
		WorkflowID:     def.ID,
		ApplicantID:    req.ApplicantID,
		CurrentStageID: entry.StageID,
		Terminal:       def.IsTerminal(entry.StageID),
		CreatedAt:      entry.EnteredAt,
		UpdatedAt:      entry.EnteredAt,
	}

	unlock := s.locks.Lock(appID)
	defer unlock()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.applications.GetByID(txCtx, appID)
		if err != nil {
			return fmt.Errorf("check application: %w", err)
		}
		if existing != nil {
			return &workflow.ConflictError{Reason: fmt.Sprintf("application %s already exists", appID)}
		}
		if err := s.applications.Create(txCtx, app); err != nil {
			return fmt.Errorf("create application: %w", err)
		}
		if err := s.history.Append(txCtx, &entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to start application", "error", err, "workflow_id", def.ID, "application_id", appID)
		return nil, err
	}

	s.emit(ctx, event.NewEvent(event.TypeApplicationStarted, def.ID, app.ID, map[string]interface{}{
		event.KeyNewStageID: entry.StageID,
		event.KeyEnteredBy:  by.ID,
		event.KeyActorKind:  string(by.Kind),
	}))

	s.logger.Info("Application started", "id", app.ID, "workflow_id", def.ID, "stage_id", entry.StageID)
	return app, nil
}

// GetApplication retrieves an application by id
func (s *workflowServiceImpl) GetApplication(ctx context.Context, id string) (*entity.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get application", "error", err, "id", id)
		return nil, fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("application %s: %w", id, workflow.ErrNotFound)
	}
	return app, nil
}

// applicationState is everything the engine needs to decide on one application
type applicationState struct {
	app     *entity.Application
	def     *workflow.Definition
	history workflow.History
	facts   workflow.Facts
}

func (s *workflowServiceImpl) loadState(ctx context.Context, applicationID string) (*applicationState, error) {
	app, err := s.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	def, err := s.GetWorkflow(ctx, app.WorkflowID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("application %s: %w", applicationID, workflow.ErrEmptyHistory)
	}
	facts, err := s.factProvider.Facts(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &applicationState{app: app, def: def, history: history, facts: facts}, nil
}

// GetLegalNextSteps returns the transitions that may currently be taken
func (s *workflowServiceImpl) GetLegalNextSteps(ctx context.Context, applicationID string) ([]workflow.Transition, error) {
	st, err := s.loadState(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return s.engine.LegalTransitions(st.def, st.history, st.facts)
}

// AdvanceApplication applies a manual transition requested by a human actor
func (s *workflowServiceImpl) AdvanceApplication(ctx context.Context, req AdvanceRequest) (*workflow.HistoryEntry, error) {
	if req.Caller.ActorID == "" {
		return nil, &workflow.TransitionError{Kind: workflow.ErrPermissionDenied, TransitionID: req.TransitionID}
	}

	unlock := s.locks.Lock(req.ApplicationID)
	defer unlock()

	st, err := s.loadState(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	perms, err := s.permissions.Permissions(ctx, req.Caller)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	entry, err := s.engine.ApplyManualTransition(st.def, st.history, req.TransitionID,
		workflow.Principal{ID: req.Caller.ActorID, Permissions: perms}, st.facts)
	if err != nil {
		s.logger.Info("Transition rejected",
			"application_id", req.ApplicationID,
			"transition_id", req.TransitionID,
			"actor_id", req.Caller.ActorID,
			"error", err)
		return nil, err
	}

	if err := s.commit(ctx, st, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Application advanced",
		"application_id", req.ApplicationID,
		"transition_id", entry.TransitionID,
		"stage_id", entry.StageID,
		"actor_id", req.Caller.ActorID)
	return &entry, nil
}

// TickAutomatic applies qualifying automatic transitions until none remain
// or the chain limit is reached.
func (s *workflowServiceImpl) TickAutomatic(ctx context.Context, applicationID string) (*TickResult, error) {
	unlock := s.locks.Lock(applicationID)
	defer unlock()

	st, err := s.loadState(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	result := &TickResult{Applied: []workflow.HistoryEntry{}}
	for {
		auto, err := s.engine.EvaluateAutomaticTransitions(st.def, st.history, st.facts)
		if err != nil {
			return result, err
		}
		if auto == nil {
			break
		}
		if len(result.Applied) >= s.chainLimit {
			result.LimitReached = true
			s.logger.Warn("Automatic chain limit reached",
				"application_id", applicationID,
				"limit", s.chainLimit)
			break
		}

		if err := s.commit(ctx, st, auto.Entry); err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, auto.Entry)

		if auto.Ambiguous {
			result.Ambiguous = append(result.Ambiguous, auto.Candidates)
			s.logger.Warn("Ambiguous automatic transition",
				"application_id", applicationID,
				"stage_id", auto.Transition.SourceStageID,
				"candidates", auto.Candidates,
				"selected", auto.Transition.ID)
			s.emit(ctx, event.NewEvent(event.TypeAutomaticAmbiguity, st.def.ID, applicationID, map[string]interface{}{
				event.KeyPreviousStageID: auto.Transition.SourceStageID,
				event.KeyTransitionID:    auto.Transition.ID,
				event.KeyCandidates:      auto.Candidates,
				event.KeyNote:            auto.Entry.Note,
			}))
		}
	}

	if len(result.Applied) > 0 {
		s.logger.Info("Automatic transitions applied",
			"application_id", applicationID,
			"count", len(result.Applied),
			"stage_id", st.history.CurrentStageID())
	}
	return result, nil
}

// errDefinitionChanged aborts a commit whose workflow version moved after the
// transition was evaluated.
var errDefinitionChanged = errors.New("workflow definition changed")

// commit appends entry with compare-and-append semantics, advances st in
// place and publishes the status change. The workflow version is re-checked
// in the same transaction so an update cannot remove the target stage or
// narrow the transition between evaluation and append.
func (s *workflowServiceImpl) commit(ctx context.Context, st *applicationState, entry workflow.HistoryEntry) error {
	previous := st.history.CurrentStageID()
	terminal := st.def.IsTerminal(entry.StageID)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.workflows.GetByID(txCtx, st.def.ID)
		if err != nil {
			return fmt.Errorf("get workflow: %w", err)
		}
		if current == nil || current.Version != st.def.Version {
			return errDefinitionChanged
		}
		if err := s.applications.AdvanceStage(txCtx, st.app.ID, previous, entry.StageID, terminal, entry.EnteredAt); err != nil {
			return err
		}
		return s.history.Append(txCtx, &entry)
	})
	if errors.Is(err, errDefinitionChanged) {
		s.logger.Info("Workflow replaced while transition was evaluated",
			"application_id", st.app.ID,
			"workflow_id", st.def.ID,
			"evaluated_version", st.def.Version,
			"transition_id", entry.TransitionID)
		return &workflow.TransitionError{
			Kind:           workflow.ErrIllegalTransition,
			CurrentStageID: previous,
			TransitionID:   entry.TransitionID,
		}
	}
	if errors.Is(err, port.ErrStaleStage) {
		s.logger.Info("Lost concurrent transition race",
			"application_id", st.app.ID,
			"transition_id", entry.TransitionID,
			"expected_stage_id", previous)
		return &workflow.TransitionError{
			Kind:           workflow.ErrIllegalTransition,
			CurrentStageID: previous,
			TransitionID:   entry.TransitionID,
		}
	}
	if err != nil {
		s.logger.Error("Failed to append transition", "error", err, "application_id", st.app.ID)
		return fmt.Errorf("append transition: %w", err)
	}

	st.history = append(st.history, entry)
	st.app.CurrentStageID = entry.StageID
	st.app.Terminal = terminal
	st.app.UpdatedAt = entry.EnteredAt

	s.emit(ctx, event.NewStatusChanged(event.StatusChanged{
		ApplicationID:   st.app.ID,
		WorkflowID:      st.def.ID,
		PreviousStageID: previous,
		NewStageID:      entry.StageID,
		TransitionID:    entry.TransitionID,
		EnteredBy:       entry.EnteredBy,
		Note:            entry.Note,
		OccurredAt:      entry.EnteredAt,
	}))
	return nil
}

// GetHistory returns the ordered status history of an application
func (s *workflowServiceImpl) GetHistory(ctx context.Context, applicationID string) (workflow.History, error) {
	if _, err := s.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	history, err := s.history.ListByApplication(ctx, applicationID)
	if err != nil {
		s.logger.Error("Failed to get history", "error", err, "application_id", applicationID)
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

// SetFacts merges facts into the application's stored facts; a nil value
// removes a fact. It returns the resulting fact set.
func (s *workflowServiceImpl) SetFacts(ctx context.Context, applicationID string, facts workflow.Facts) (workflow.Facts, error) {
	if s.facts == nil {
		return nil, fmt.Errorf("fact storage is not configured")
	}
	if _, err := s.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	if err := s.facts.Upsert(ctx, applicationID, facts); err != nil {
		s.logger.Error("Failed to store facts", "error", err, "application_id", applicationID)
		return nil, fmt.Errorf("store facts: %w", err)
	}
	merged, err := s.facts.Get(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	s.logger.Info("Facts updated", "application_id", applicationID, "count", len(facts))
	return merged, nil
}

// ExportHistory renders the application's history through the exporter
func (s *workflowServiceImpl) ExportHistory(ctx context.Context, applicationID string, w io.Writer) error {
	if s.exporter == nil {
		return fmt.Errorf("history export is not configured")
	}
	app, err := s.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	def, err := s.GetWorkflow(ctx, app.WorkflowID)
	if err != nil {
		return err
	}
	history, err := s.history.ListByApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return s.exporter.Export(w, app, def, history)
}

func (s *workflowServiceImpl) logWarnings(def *workflow.Definition, warnings []workflow.ValidationError) {
	for _, w := range warnings {
		s.logger.Warn("Workflow definition warning",
			"workflow_id", def.ID,
			"code", w.Code,
			"path", w.Path,
			"message", w.Message)
	}
}

// emit publishes evt without waiting for handlers
func (s *workflowServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, evt)
}
