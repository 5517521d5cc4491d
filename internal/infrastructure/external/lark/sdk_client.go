package lark

import (
	"context"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Config holds Lark notifier configuration
type Config struct {
	AppID     string
	AppSecret string
	// ReceiveID is the chat (or user) that receives status messages
	ReceiveID     string
	ReceiveIDType string // chat_id, open_id, user_id or email
}

// messageCreator is the part of the IM API the notifier uses
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// newMessageCreator builds the SDK client and returns its IM message API
func newMessageCreator(cfg Config) messageCreator {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return client.Im.Message
}
