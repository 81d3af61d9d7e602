package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/domains/messaging"
	"github.com/govconnect/channel-gateway/pkg/utils"
	"github.com/govconnect/channel-gateway/validations"
)

type Messages struct {
	Service messaging.IMessagingUsecase
}

func InitRestMessages(app fiber.Router, service messaging.IMessagingUsecase) Messages {
	rest := Messages{Service: service}
	app.Get("/messages", rest.History)
	app.Post("/messages", rest.Store)
	app.Post("/messages/read", rest.MarkRead)
	app.Post("/send", rest.Send)
	app.Post("/typing", rest.Typing)
	app.Patch("/conversations/user-profile", rest.SetUserProfile)
	return rest
}

func (handler *Messages) History(c *fiber.Ctx) error {
	var request messaging.HistoryRequest
	err := c.QueryParser(&request)
	utils.PanicIfNeeded(err)

	history, err := handler.Service.History(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message history",
		Results: history,
	})
}

func (handler *Messages) Store(c *fiber.Ctx) error {
	var request messaging.StoreRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateStoreMessage(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	msg, err := handler.Service.Store(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message stored",
		Results: msg,
	})
}

func (handler *Messages) MarkRead(c *fiber.Ctx) error {
	var request messaging.ReadRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.MarkRead(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Marked as read",
	})
}

func (handler *Messages) Send(c *fiber.Ctx) error {
	var request messaging.SendRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateSend(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.Send(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
		Results: response,
	})
}

func (handler *Messages) Typing(c *fiber.Ctx) error {
	var request messaging.TypingRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.Typing(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Presence updated",
	})
}

func (handler *Messages) SetUserProfile(c *fiber.Ctx) error {
	var request messaging.UserProfileRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.SetUserProfile(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Profile updated",
	})
}
