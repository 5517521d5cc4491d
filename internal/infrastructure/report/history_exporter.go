package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// SheetName is the worksheet the history is written to
const SheetName = "History"

var historyHeader = []string{"#", "Stage ID", "Stage", "Entered At", "Entered By", "Transition ID", "Transition", "Note"}

// HistoryExporter writes status history as an xlsx workbook
type HistoryExporter struct {
	logger *zap.Logger
}

// NewHistoryExporter creates an xlsx history exporter
func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{logger: logger}
}

// Export writes a summary block followed by one row per history entry
func (e *HistoryExporter) Export(w io.Writer, app *entity.Application, def *workflow.Definition, history workflow.History) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	summary := [][2]string{
		{"Application", app.ID},
		{"Applicant", app.ApplicantID},
		{"Workflow", workflowLabel(def, app.WorkflowID)},
		{"Current Stage", stageName(def, app.CurrentStageID)},
	}
	row := 1
	for _, kv := range summary {
		if err := e.setRow(f, row, []interface{}{kv[0], kv[1]}); err != nil {
			return err
		}
		row++
	}
	row++

	header := make([]interface{}, len(historyHeader))
	for i, h := range historyHeader {
		header[i] = h
	}
	if err := e.setRow(f, row, header); err != nil {
		return err
	}
	row++

	for _, entry := range history {
		values := []interface{}{
			entry.Position,
			entry.StageID,
			stageName(def, entry.StageID),
			entry.EnteredAt.UTC().Format(time.RFC3339Nano),
			entry.EnteredBy.String(),
			entry.TransitionID,
			transitionName(def, entry.TransitionID),
			entry.Note,
		}
		if err := e.setRow(f, row, values); err != nil {
			return err
		}
		row++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("History exported",
		zap.String("application_id", app.ID),
		zap.Int("entries", len(history)))
	return nil
}

func (e *HistoryExporter) setRow(f *excelize.File, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("invalid cell coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func workflowLabel(def *workflow.Definition, fallback string) string {
	if def == nil {
		return fallback
	}
	return fmt.Sprintf("%s (v%d)", def.Name, def.Version)
}

func stageName(def *workflow.Definition, id string) string {
	if def != nil {
		if s, ok := def.Stage(id); ok {
			return s.Name
		}
	}
	return ""
}

func transitionName(def *workflow.Definition, id string) string {
	if def != nil && id != "" {
		if t, ok := def.Transition(id); ok {
			return t.Name
		}
	}
	return ""
}

var _ port.HistoryExporter = (*HistoryExporter)(nil)
