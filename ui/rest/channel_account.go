package rest

import (
	"github.com/gofiber/fiber/v2"

	domainSession "github.com/govconnect/channel-gateway/domains/session"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type ChannelAccounts struct {
	Accounts domainSession.IChannelAccountRepository
}

func InitRestChannelAccounts(app fiber.Router, accounts domainSession.IChannelAccountRepository) ChannelAccounts {
	rest := ChannelAccounts{Accounts: accounts}
	app.Get("/channel-accounts", rest.List)
	app.Get("/channel-accounts/:village_id", rest.Get)
	app.Put("/channel-accounts/:village_id", rest.Update)
	return rest
}

func (handler *ChannelAccounts) List(c *fiber.Ctx) error {
	accounts, err := handler.Accounts.List(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel accounts",
		Results: accounts,
	})
}

func (handler *ChannelAccounts) Get(c *fiber.Ctx) error {
	account, err := handler.Accounts.Get(c.UserContext(), c.Params("village_id"))
	utils.PanicIfNeeded(err)
	if account == nil {
		panic(pkgError.NotFoundError("channel account not found"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel account",
		Results: account,
	})
}

type updateChannelAccountRequest struct {
	EnabledWa      *bool  `json:"enabled_wa"`
	EnabledWebchat *bool  `json:"enabled_webchat"`
	WaToken        string `json:"wa_token,omitempty"`
	WebhookURL     string `json:"webhook_url,omitempty"`
}

func (handler *ChannelAccounts) Update(c *fiber.Ctx) error {
	villageID := c.Params("village_id")
	var request updateChannelAccountRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	account, err := handler.Accounts.Get(c.UserContext(), villageID)
	utils.PanicIfNeeded(err)
	if account == nil {
		account = &domainSession.ChannelAccount{VillageID: villageID, EnabledWa: true, EnabledWebchat: true}
	}
	if request.EnabledWa != nil {
		account.EnabledWa = *request.EnabledWa
	}
	if request.EnabledWebchat != nil {
		account.EnabledWebchat = *request.EnabledWebchat
	}
	if request.WaToken != "" {
		account.WaToken = request.WaToken
	}
	if request.WebhookURL != "" {
		account.WebhookURL = request.WebhookURL
	}

	err = handler.Accounts.Upsert(c.UserContext(), account)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Channel account updated",
		Results: account,
	})
}
