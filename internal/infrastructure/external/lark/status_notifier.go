package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/domain/event"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// StatusNotifier posts a text message to a Lark chat for every status change.
// It implements port.StatusNotifier.
type StatusNotifier struct {
	messages      messageCreator
	receiveID     string
	receiveIDType string
	logger        *zap.Logger
}

// NewStatusNotifier creates a notifier backed by the Lark IM API
func NewStatusNotifier(cfg Config, logger *zap.Logger) (*StatusNotifier, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark app_id and app_secret are required")
	}
	return newStatusNotifier(newMessageCreator(cfg), cfg, logger)
}

func newStatusNotifier(messages messageCreator, cfg Config, logger *zap.Logger) (*StatusNotifier, error) {
	if cfg.ReceiveID == "" {
		return nil, fmt.Errorf("lark receive id is required")
	}
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = "chat_id"
	}
	return &StatusNotifier{
		messages:      messages,
		receiveID:     cfg.ReceiveID,
		receiveIDType: idType,
		logger:        logger,
	}, nil
}

// NotifyStatusChanged sends a message describing the transition
func (n *StatusNotifier) NotifyStatusChanged(ctx context.Context, fact event.StatusChanged, def *workflow.Definition) error {
	content, err := json.Marshal(map[string]string{"text": FormatStatusMessage(fact, def)})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(n.receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.receiveID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send status message",
			zap.String("application_id", fact.ApplicationID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("application_id", fact.ApplicationID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Info("Status message sent",
		zap.String("message_id", messageID),
		zap.String("application_id", fact.ApplicationID))
	return nil
}

// FormatStatusMessage renders a status change using stage names when the
// definition is available.
func FormatStatusMessage(fact event.StatusChanged, def *workflow.Definition) string {
	stageName := func(id string) string {
		if def != nil {
			if s, ok := def.Stage(id); ok {
				return s.Name
			}
		}
		return id
	}

	var b strings.Builder
	if def != nil {
		fmt.Fprintf(&b, "[%s] ", def.Name)
	}
	fmt.Fprintf(&b, "Application %s moved from %s to %s", fact.ApplicationID, stageName(fact.PreviousStageID), stageName(fact.NewStageID))
	if fact.EnteredBy.IsSystem() {
		b.WriteString(" automatically")
	} else {
		fmt.Fprintf(&b, " by %s", fact.EnteredBy.ID)
	}
	if def != nil && def.IsTerminal(fact.NewStageID) {
		b.WriteString(" (final stage)")
	}
	return b.String()
}

var _ port.StatusNotifier = (*StatusNotifier)(nil)
