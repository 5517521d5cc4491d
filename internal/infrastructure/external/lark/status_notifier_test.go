package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

type mockMessages struct {
	req  *larkIm.CreateMessageReq
	resp *larkIm.CreateMessageResp
	err  error
}

func (m *mockMessages) Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error) {
	m.req = req
	return m.resp, m.err
}

func testDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name: "Graduate admissions",
		Stages: []workflow.Stage{
			{ID: "review", Name: "Review", Sequence: 1},
			{ID: "decided", Name: "Decided", Sequence: 2},
		},
		Transitions: []workflow.Transition{{ID: "t1", SourceStageID: "review", TargetStageID: "decided"}},
	}
}

func TestFormatStatusMessage(t *testing.T) {
	fact := event.StatusChanged{ApplicationID: "app-9", PreviousStageID: "review", NewStageID: "decided", EnteredBy: workflow.Human("dean")}

	assert.Equal(t, "[Graduate admissions] Application app-9 moved from Review to Decided by dean (final stage)",
		FormatStatusMessage(fact, testDefinition()))

	fact.EnteredBy = workflow.System()
	assert.Equal(t, "Application app-9 moved from review to decided automatically", FormatStatusMessage(fact, nil))
}

func TestStatusNotifier_NotifyStatusChanged(t *testing.T) {
	fact := event.StatusChanged{ApplicationID: "app-9", PreviousStageID: "review", NewStageID: "decided", EnteredBy: workflow.Human("dean")}

	t.Run("sends text message to the configured chat", func(t *testing.T) {
		msgs := &mockMessages{resp: &larkIm.CreateMessageResp{CodeError: larkcore.CodeError{Code: 0}}}
		n, err := newStatusNotifier(msgs, Config{ReceiveID: "oc_123"}, zap.NewNop())
		require.NoError(t, err)

		require.NoError(t, n.NotifyStatusChanged(context.Background(), fact, testDefinition()))
		require.NotNil(t, msgs.req)
		require.NotNil(t, msgs.req.Body)
		assert.Equal(t, "oc_123", *msgs.req.Body.ReceiveId)
		assert.Equal(t, "text", *msgs.req.Body.MsgType)

		var content map[string]string
		require.NoError(t, json.Unmarshal([]byte(*msgs.req.Body.Content), &content))
		assert.Contains(t, content["text"], "Application app-9")
	})

	t.Run("api failure is returned", func(t *testing.T) {
		msgs := &mockMessages{resp: &larkIm.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230001, Msg: "bot not in chat"}}}
		n, err := newStatusNotifier(msgs, Config{ReceiveID: "oc_123"}, zap.NewNop())
		require.NoError(t, err)

		err = n.NotifyStatusChanged(context.Background(), fact, nil)
		assert.ErrorContains(t, err, "230001")
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		boom := errors.New("dial tcp: timeout")
		n, err := newStatusNotifier(&mockMessages{err: boom}, Config{ReceiveID: "oc_123"}, zap.NewNop())
		require.NoError(t, err)
		assert.ErrorIs(t, n.NotifyStatusChanged(context.Background(), fact, nil), boom)
	})

	t.Run("requires credentials and receiver", func(t *testing.T) {
		_, err := NewStatusNotifier(Config{ReceiveID: "oc_1"}, zap.NewNop())
		assert.Error(t, err)
		_, err = newStatusNotifier(&mockMessages{}, Config{}, zap.NewNop())
		assert.Error(t, err)
	})
}
