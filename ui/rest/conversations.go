package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/domains/livechat"
	"github.com/govconnect/channel-gateway/pkg/utils"
	"github.com/govconnect/channel-gateway/validations"
)

type Conversations struct {
	Service livechat.ILiveChatUsecase
}

func InitRestConversations(app fiber.Router, service livechat.ILiveChatUsecase) Conversations {
	rest := Conversations{Service: service}
	app.Get("/conversations", rest.List)
	app.Get("/conversations/:identifier", rest.Detail)
	app.Delete("/conversations/:identifier", rest.Delete)
	app.Post("/conversations/:identifier/send", rest.AdminSend)
	app.Post("/conversations/:identifier/read", rest.MarkRead)
	app.Post("/conversations/:identifier/retry", rest.Retry)

	app.Get("/takeover/:identifier", rest.ActiveTakeover)
	app.Post("/takeover/:identifier", rest.StartTakeover)
	app.Delete("/takeover/:identifier", rest.EndTakeover)
	return rest
}

// conversationKey builds the composite key from the path identifier plus
// village_id and channel query parameters.
func conversationKey(c *fiber.Ctx) chat.ConversationKey {
	channel := chat.Channel(c.Query("channel", string(chat.ChannelWhatsApp)))
	if channel != chat.ChannelWebchat {
		channel = chat.ChannelWhatsApp
	}
	return chat.ConversationKey{
		VillageID:         c.Query("village_id"),
		Channel:           channel,
		ChannelIdentifier: c.Params("identifier"),
	}
}

func (handler *Conversations) List(c *fiber.Ctx) error {
	var request livechat.ListRequest
	err := c.QueryParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.Conversations(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation list",
		Results: response,
	})
}

func (handler *Conversations) Detail(c *fiber.Ctx) error {
	detail, err := handler.Service.Conversation(c.UserContext(), c.Query("village_id"), c.Query("id"), c.Params("identifier"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation detail",
		Results: detail,
	})
}

func (handler *Conversations) Delete(c *fiber.Ctx) error {
	err := handler.Service.DeleteConversation(c.UserContext(), conversationKey(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation deleted",
	})
}

func (handler *Conversations) AdminSend(c *fiber.Ctx) error {
	var request livechat.AdminSendRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	request.ChannelIdentifier = c.Params("identifier")
	if request.VillageID == "" {
		request.VillageID = c.Query("village_id")
	}

	err = validations.ValidateAdminSend(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	msg, err := handler.Service.AdminSend(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reply sent",
		Results: msg,
	})
}

func (handler *Conversations) MarkRead(c *fiber.Ctx) error {
	err := handler.Service.MarkAsRead(c.UserContext(), conversationKey(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Marked as read",
	})
}

func (handler *Conversations) Retry(c *fiber.Ctx) error {
	err := handler.Service.RetryAI(c.UserContext(), conversationKey(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Retry queued",
	})
}

func (handler *Conversations) ActiveTakeover(c *fiber.Ctx) error {
	takeover, err := handler.Service.ActiveTakeover(c.UserContext(), conversationKey(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Takeover status",
		Results: map[string]interface{}{
			"active":   takeover != nil,
			"takeover": takeover,
		},
	})
}

func (handler *Conversations) StartTakeover(c *fiber.Ctx) error {
	var request livechat.StartTakeoverRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	request.ChannelIdentifier = c.Params("identifier")
	if request.VillageID == "" {
		request.VillageID = c.Query("village_id")
	}

	err = validations.ValidateStartTakeover(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	session, err := handler.Service.StartTakeover(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Takeover started",
		Results: session,
	})
}

func (handler *Conversations) EndTakeover(c *fiber.Ctx) error {
	var request livechat.EndTakeoverRequest
	if len(c.Body()) > 0 {
		err := c.BodyParser(&request)
		utils.PanicIfNeeded(err)
	}
	request.ChannelIdentifier = c.Params("identifier")
	if request.VillageID == "" {
		request.VillageID = c.Query("village_id")
	}

	err := validations.ValidateEndTakeover(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	err = handler.Service.EndTakeover(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Takeover ended",
	})
}
