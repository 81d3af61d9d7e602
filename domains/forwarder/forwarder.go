package forwarder

import (
	"context"

	domainBus "github.com/govconnect/channel-gateway/domains/bus"
	"github.com/govconnect/channel-gateway/domains/chat"
)

// IForwarderUsecase packages approved inbound messages for the AI
// orchestrator and dispatches the orchestrator's replies back out.
type IForwarderUsecase interface {
	Forward(ctx context.Context, msg *chat.Message, guard domainBus.SpamGuardInfo, isRetry bool) error
	HandleAIReply(ctx context.Context, body []byte) error
	HandleAIError(ctx context.Context, body []byte) error
	HandleMessageStatus(ctx context.Context, body []byte) error
}
