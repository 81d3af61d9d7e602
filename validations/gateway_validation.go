package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/govconnect/channel-gateway/domains/livechat"
	"github.com/govconnect/channel-gateway/domains/messaging"
	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/domains/webhook"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
)

func ValidateCreateSession(ctx context.Context, request domainSession.CreateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidatePairPhone(ctx context.Context, request domainSession.PairPhoneRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.Phone, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateForceDisconnect(ctx context.Context, request domainSession.ForceDisconnectRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.TargetVillageID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateStartTakeover(ctx context.Context, request livechat.StartTakeoverRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.ChannelIdentifier, validation.Required),
		validation.Field(&request.AdminID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateEndTakeover(ctx context.Context, request livechat.EndTakeoverRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.ChannelIdentifier, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateAdminSend(ctx context.Context, request livechat.AdminSendRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.ChannelIdentifier, validation.Required),
		validation.Field(&request.Message, validation.Required),
		validation.Field(&request.AdminID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateStoreMessage(ctx context.Context, request messaging.StoreRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.Message, validation.Required),
		validation.Field(&request.Direction, validation.Required, validation.In("IN", "OUT", "in", "out")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSend(ctx context.Context, request messaging.SendRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.WaUserID, validation.Required),
		validation.Field(&request.Message, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateWebchatMessage(ctx context.Context, request webhook.WebchatMessage) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.VillageID, validation.Required),
		validation.Field(&request.SessionID, validation.Required),
		validation.Field(&request.Message, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
