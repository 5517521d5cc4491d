package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/application/service"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// AutoAdvanceConfig holds configuration for the auto-advance sweeper
type AutoAdvanceConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultAutoAdvanceConfig returns default configuration
func DefaultAutoAdvanceConfig() AutoAdvanceConfig {
	return AutoAdvanceConfig{
		Interval:  30 * time.Second,
		BatchSize: 100,
	}
}

// AutomaticTicker applies automatic transitions to one application
type AutomaticTicker interface {
	TickAutomatic(ctx context.Context, applicationID string) (*service.TickResult, error)
}

// SweepStats summarizes one pass over the open applications
type SweepStats struct {
	Scanned  int
	Advanced int
	Applied  int
	Failed   int
}

// AutoAdvanceWorker periodically ticks every non-terminal application so
// automatic transitions fire once their conditions start to hold.
type AutoAdvanceWorker struct {
	config       AutoAdvanceConfig
	applications port.ApplicationRepository
	ticker       AutomaticTicker
	logger       *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	lastSweep time.Time
	lastStats SweepStats
	lastError error
}

// NewAutoAdvanceWorker creates a new auto-advance worker
func NewAutoAdvanceWorker(
	config AutoAdvanceConfig,
	applications port.ApplicationRepository,
	ticker AutomaticTicker,
	logger *zap.Logger,
) *AutoAdvanceWorker {
	defaults := DefaultAutoAdvanceConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	return &AutoAdvanceWorker{
		config:       config,
		applications: applications,
		ticker:       ticker,
		logger:       logger,
	}
}

// Start begins the sweep loop
func (w *AutoAdvanceWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("auto-advance worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("AutoAdvanceWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.loop(loopCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight sweep to finish
func (w *AutoAdvanceWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	stats := w.lastStats
	w.mu.RUnlock()
	w.logger.Info("AutoAdvanceWorker stopped",
		zap.Int("last_scanned", stats.Scanned),
		zap.Int("last_advanced", stats.Advanced))
	return nil
}

// Name returns the worker name for identification
func (w *AutoAdvanceWorker) Name() string {
	return "AutoAdvanceWorker"
}

// LastSweep returns when the last sweep finished and what it did
func (w *AutoAdvanceWorker) LastSweep() (time.Time, SweepStats, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSweep, w.lastStats, w.lastError
}

func (w *AutoAdvanceWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Sweep loop context cancelled")
			return

		case <-ticker.C:
			stats, err := w.SweepOnce(ctx)

			w.mu.Lock()
			w.lastSweep = time.Now()
			w.lastStats = stats
			w.lastError = err
			w.mu.Unlock()

			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Auto-advance sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce pages through open applications and ticks each of them. Errors
// for individual applications are logged and counted, not returned.
func (w *AutoAdvanceWorker) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	afterID := ""

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := w.applications.ListOpen(ctx, afterID, w.config.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("list open applications: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, app := range batch {
			stats.Scanned++
			res, err := w.ticker.TickAutomatic(ctx, app.ID)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Failed++
				level := w.logger.Error
				if errors.Is(err, workflow.ErrIllegalTransition) {
					level = w.logger.Warn
				}
				level("Failed to auto-advance application",
					zap.String("application_id", app.ID),
					zap.Error(err))
				continue
			}
			if res != nil && len(res.Applied) > 0 {
				stats.Advanced++
				stats.Applied += len(res.Applied)
			}
		}

		afterID = batch[len(batch)-1].ID
		if len(batch) < w.config.BatchSize {
			break
		}
	}

	if stats.Applied > 0 {
		w.logger.Info("Auto-advance sweep completed",
			zap.Int("scanned", stats.Scanned),
			zap.Int("advanced", stats.Advanced),
			zap.Int("applied", stats.Applied),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}
