package rest

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/govconnect/channel-gateway/domains/webhook"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
	"github.com/govconnect/channel-gateway/validations"
)

type Webhook struct {
	Service     webhook.IIngestUsecase
	VerifyToken string
}

func InitRestWebhook(app fiber.Router, service webhook.IIngestUsecase, verifyToken string) Webhook {
	rest := Webhook{Service: service, VerifyToken: verifyToken}
	app.Post("/webhook", rest.Receive)
	app.Post("/webhook/whatsapp", rest.Receive)
	app.Get("/webhook/whatsapp", rest.VerifyChallenge)
	app.Post("/webhook/webchat", rest.ReceiveWebchat)
	return rest
}

// Receive acknowledges every interpretable body with 2xx. The upstream
// provider retries anything else, so processing errors are logged and
// swallowed here.
func (handler *Webhook) Receive(c *fiber.Ctx) error {
	body := c.Body()
	contentType := c.Get(fiber.HeaderContentType)
	if strings.Contains(contentType, "application/x-www-form-urlencoded") || strings.Contains(contentType, "multipart/form-data") {
		jsonData := c.FormValue("jsonData")
		if jsonData == "" {
			return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{
				Status:  400,
				Code:    "VALIDATION_ERROR",
				Message: "missing jsonData form field",
			})
		}
		body = []byte(jsonData)
	}

	payload, err := webhook.ParsePayload(body)
	if err != nil {
		logrus.WithError(err).Warn("[REST] Unparseable webhook body")
		return c.Status(fiber.StatusBadRequest).JSON(utils.ResponseData{
			Status:  400,
			Code:    "VALIDATION_ERROR",
			Message: "invalid webhook payload",
		})
	}

	if err := handler.Service.HandleWebhook(c.UserContext(), payload); err != nil {
		if _, spam := err.(pkgError.SpamRejectedError); spam {
			return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok ignored"})
		}
		logrus.WithError(err).Warn("[REST] Webhook processing failed")
	}
	return c.JSON(utils.ResponseData{Status: 200, Code: "SUCCESS", Message: "ok"})
}

// VerifyChallenge implements the classic subscribe handshake.
func (handler *Webhook) VerifyChallenge(c *fiber.Ctx) error {
	challenge := c.Query("hub.challenge")
	if handler.VerifyToken == "" {
		return c.SendString(challenge)
	}
	if c.Query("hub.mode") != "subscribe" || c.Query("hub.verify_token") != handler.VerifyToken {
		return c.Status(fiber.StatusForbidden).JSON(utils.ResponseData{
			Status:  403,
			Code:    "AUTH_ERROR",
			Message: "verification failed",
		})
	}
	return c.SendString(challenge)
}

func (handler *Webhook) ReceiveWebchat(c *fiber.Ctx) error {
	var request webhook.WebchatMessage
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateWebchatMessage(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	err = handler.Service.HandleWebchat(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message accepted",
	})
}
