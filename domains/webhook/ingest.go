package webhook

import "context"

// IIngestUsecase is the inbound pipeline: parse, filter, persist, spam
// decision, forward.
type IIngestUsecase interface {
	HandleWebhook(ctx context.Context, payload *Payload) error
	HandleWebchat(ctx context.Context, msg WebchatMessage) error
}
