package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/dispatcher"
	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/application/service"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/auth"
	infraLark "github.com/garyjia/admissions-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/report"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/worker"
	"github.com/garyjia/admissions-workflow/pkg/database"
	"github.com/garyjia/admissions-workflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database, applies pending migrations when
// configured and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(conn, logger); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	repoLogger := utils.Named(logger, "repository")
	return &RepositoryBundle{
		Workflow:    repository.NewWorkflowRepository(db, repoLogger),
		Application: repository.NewApplicationRepository(db, repoLogger),
		History:     repository.NewHistoryRepository(db, repoLogger),
		Fact:        repository.NewFactRepository(db, repoLogger),
		Audit:       repository.NewAuditRepository(db, repoLogger),
	}, nil
}

// ProvideStatusNotifier creates the Lark notifier, or nil when it is disabled.
func ProvideStatusNotifier(cfg *LarkConfig, logger *zap.Logger) (port.StatusNotifier, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	notifier, err := infraLark.NewStatusNotifier(infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveID:     cfg.ReceiveID,
		ReceiveIDType: cfg.ReceiveIDType,
	}, utils.Named(logger, "lark"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lark notifier: %w", err)
	}
	return notifier, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: utils.Named(logger, "dispatcher")}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Notifier    port.StatusNotifier
	Permissions map[string][]string
	WorkflowCfg *WorkflowConfig
	Logger      *zap.Logger
}

// ProvideServices creates the application services and subscribes the
// notification sinks on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	chainLimit := 0
	if deps.WorkflowCfg != nil {
		chainLimit = deps.WorkflowCfg.ChainLimit
	}

	workflows := service.NewWorkflowService(service.Dependencies{
		Workflows:    deps.Repos.Workflow,
		Applications: deps.Repos.Application,
		History:      deps.Repos.History,
		Facts:        deps.Repos.Fact,
		FactProvider: deps.Repos.Fact,
		Permissions:  auth.NewStaticPermissionProvider(deps.Permissions, utils.Named(deps.Logger, "auth")),
		Exporter:     report.NewHistoryExporter(utils.Named(deps.Logger, "report")),
		TxManager:    deps.TxManager,
		Dispatcher:   deps.Dispatcher,
		Engine:       workflow.NewEngine(),
		Logger:       &zapLoggerAdapter{logger: utils.Named(deps.Logger, "workflow")},
	}, service.Options{ChainLimit: chainLimit})

	notifications := service.NewNotificationService(
		deps.Repos.Audit,
		deps.Repos.Workflow,
		deps.Notifier,
		&zapLoggerAdapter{logger: utils.Named(deps.Logger, "notification")},
	)
	notifications.Register(deps.Dispatcher)

	return &ServiceBundle{
		Workflow:     workflows,
		Notification: notifications,
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos       *RepositoryBundle
	Ticker      worker.AutomaticTicker
	WorkflowCfg *WorkflowConfig
	Logger      *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the enabled workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(utils.Named(deps.Logger, "worker"))

	if deps.WorkflowCfg != nil && deps.WorkflowCfg.SweepEnabled {
		if deps.Repos == nil || deps.Ticker == nil {
			return nil, fmt.Errorf("repositories and ticker are required for the auto-advance worker")
		}
		manager.Register(worker.NewAutoAdvanceWorker(
			worker.AutoAdvanceConfig{
				Interval:  deps.WorkflowCfg.SweepInterval,
				BatchSize: deps.WorkflowCfg.SweepBatchSize,
			},
			deps.Repos.Application,
			deps.Ticker,
			utils.Named(deps.Logger, "auto-advance"),
		))
	}

	return manager, nil
}
