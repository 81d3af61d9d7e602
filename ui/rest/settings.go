package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/core/settings/application"
	"github.com/govconnect/channel-gateway/core/settings/domain"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type Settings struct {
	Service *application.SettingsService
}

func InitRestSettings(app fiber.Router, service *application.SettingsService) Settings {
	rest := Settings{Service: service}
	app.Get("/settings", rest.Get)
	app.Put("/settings", rest.Update)
	return rest
}

func (handler *Settings) Get(c *fiber.Ctx) error {
	settings, err := handler.Service.Reload(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings",
		Results: settings,
	})
}

type updateSettingsRequest struct {
	AutoReadMessages *bool `json:"auto_read_messages"`
	TypingIndicator  *bool `json:"typing_indicator"`
}

func (handler *Settings) Update(c *fiber.Ctx) error {
	var request updateSettingsRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	current := handler.Service.Current()
	next := domain.Settings{
		AutoReadMessages: current.AutoReadMessages,
		TypingIndicator:  current.TypingIndicator,
	}
	if request.AutoReadMessages != nil {
		next.AutoReadMessages = *request.AutoReadMessages
	}
	if request.TypingIndicator != nil {
		next.TypingIndicator = *request.TypingIndicator
	}

	err = handler.Service.Update(c.UserContext(), next)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings updated",
		Results: next,
	})
}
