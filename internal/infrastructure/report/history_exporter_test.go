package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/domain/entity"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

func TestHistoryExporter_Export(t *testing.T) {
	def := &workflow.Definition{
		ID:      "wf-1",
		Name:    "Undergraduate 2026",
		Version: 3,
		Stages: []workflow.Stage{
			{ID: "submitted", Name: "Submitted", Sequence: 1},
			{ID: "review", Name: "Review", Sequence: 2},
		},
		Transitions: []workflow.Transition{
			{ID: "t-review", Name: "Start review", SourceStageID: "submitted", TargetStageID: "review"},
		},
	}
	app := &entity.Application{ID: "app-1", WorkflowID: "wf-1", ApplicantID: "stu-42", CurrentStageID: "review"}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	history := workflow.History{
		{Position: 1, StageID: "submitted", EnteredAt: at, EnteredBy: workflow.Human("stu-42")},
		{Position: 2, StageID: "review", EnteredAt: at.Add(time.Hour), EnteredBy: workflow.System(), TransitionID: "t-review", Note: "auto"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewHistoryExporter(zap.NewNop()).Export(&buf, app, def, history))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	cell := func(ref string) string {
		v, err := f.GetCellValue(SheetName, ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "app-1", cell("B1"))
	assert.Equal(t, "stu-42", cell("B2"))
	assert.Equal(t, "Undergraduate 2026 (v3)", cell("B3"))
	assert.Equal(t, "Review", cell("B4"))

	assert.Equal(t, "#", cell("A6"))
	assert.Equal(t, "Note", cell("H6"))

	assert.Equal(t, "1", cell("A7"))
	assert.Equal(t, "Submitted", cell("C7"))
	assert.Equal(t, "human:stu-42", cell("E7"))
	assert.Equal(t, "", cell("F7"))

	assert.Equal(t, "2", cell("A8"))
	assert.Equal(t, "system", cell("E8"))
	assert.Equal(t, "t-review", cell("F8"))
	assert.Equal(t, "Start review", cell("G8"))
	assert.Equal(t, "auto", cell("H8"))
}
