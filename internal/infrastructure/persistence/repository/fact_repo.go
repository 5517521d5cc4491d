package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/internal/infrastructure/persistence/sqlite"
)

// FactRepository implements port.FactRepository and serves as the default
// port.FactProvider. Values are stored as JSON.
type FactRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewFactRepository creates a new fact repository
func NewFactRepository(db *sqlite.DB, logger *zap.Logger) *FactRepository {
	return &FactRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns every stored fact of an application
func (r *FactRepository) Get(ctx context.Context, applicationID string) (workflow.Facts, error) {
	var rows []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	err := sqlx.SelectContext(ctx, sqlite.ExecutorFor(ctx, r.db.DB), &rows,
		`SELECT name, value FROM application_facts WHERE application_id = ?`, applicationID)
	if err != nil {
		r.logger.Error("Failed to get facts", zap.String("application_id", applicationID), zap.Error(err))
		return nil, fmt.Errorf("failed to get facts: %w", err)
	}

	facts := make(workflow.Facts, len(rows))
	for _, row := range rows {
		var v interface{}
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("failed to decode fact %s: %w", row.Name, err)
		}
		facts[row.Name] = v
	}
	return facts, nil
}

// Facts implements port.FactProvider
func (r *FactRepository) Facts(ctx context.Context, applicationID string) (workflow.Facts, error) {
	return r.Get(ctx, applicationID)
}

// Upsert merges facts into the stored set. A nil value removes the fact.
func (r *FactRepository) Upsert(ctx context.Context, applicationID string, facts workflow.Facts) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := sqlite.ExecutorFor(ctx, r.db.DB)
		at := r.now()

		for name, value := range facts {
			if value == nil {
				if _, err := exec.ExecContext(ctx,
					`DELETE FROM application_facts WHERE application_id = ? AND name = ?`, applicationID, name); err != nil {
					return fmt.Errorf("failed to delete fact %s: %w", name, err)
				}
				continue
			}

			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode fact %s: %w", name, err)
			}
			_, err = exec.ExecContext(ctx, `
				INSERT INTO application_facts (application_id, name, value, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (application_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				applicationID, name, string(data), at)
			if err != nil {
				r.logger.Error("Failed to upsert fact", zap.String("application_id", applicationID), zap.String("name", name), zap.Error(err))
				return fmt.Errorf("failed to upsert fact %s: %w", name, err)
			}
		}
		return nil
	})
}

var (
	_ port.FactRepository = (*FactRepository)(nil)
	_ port.FactProvider   = (*FactRepository)(nil)
)
