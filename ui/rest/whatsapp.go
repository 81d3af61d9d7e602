package rest

import (
	"github.com/gofiber/fiber/v2"

	domainSession "github.com/govconnect/channel-gateway/domains/session"
	"github.com/govconnect/channel-gateway/pkg/utils"
	"github.com/govconnect/channel-gateway/validations"
)

type WhatsApp struct {
	Service domainSession.ISessionUsecase
}

func InitRestWhatsApp(app fiber.Router, service domainSession.ISessionUsecase) WhatsApp {
	rest := WhatsApp{Service: service}
	app.Post("/whatsapp/session", rest.CreateSession)
	app.Delete("/whatsapp/session", rest.DeleteSession)
	app.Get("/whatsapp/status", rest.Status)
	app.Post("/whatsapp/connect", rest.Connect)
	app.Post("/whatsapp/disconnect", rest.Disconnect)
	app.Post("/whatsapp/logout", rest.Logout)
	app.Get("/whatsapp/qr", rest.QR)
	app.Post("/whatsapp/pairphone", rest.PairPhone)
	app.Get("/whatsapp/settings", rest.Settings)
	app.Get("/whatsapp/check-duplicate", rest.CheckDuplicate)
	app.Post("/whatsapp/force-disconnect", rest.ForceDisconnect)
	return rest
}

// villageID accepts the tenant from either the query string or a JSON body
// so GET and POST callers share one contract.
func villageID(c *fiber.Ctx) string {
	if v := c.Query("village_id"); v != "" {
		return v
	}
	var body struct {
		VillageID string `json:"village_id"`
	}
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&body)
	}
	return body.VillageID
}

func (handler *WhatsApp) CreateSession(c *fiber.Ctx) error {
	var request domainSession.CreateRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateCreateSession(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	session, err := handler.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session created",
		Results: session,
	})
}

func (handler *WhatsApp) DeleteSession(c *fiber.Ctx) error {
	err := handler.Service.Delete(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session deleted",
	})
}

func (handler *WhatsApp) Status(c *fiber.Ctx) error {
	status, err := handler.Service.Status(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session status",
		Results: status,
	})
}

func (handler *WhatsApp) Connect(c *fiber.Ctx) error {
	status, err := handler.Service.Connect(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Connect requested",
		Results: status,
	})
}

func (handler *WhatsApp) Disconnect(c *fiber.Ctx) error {
	status, err := handler.Service.Disconnect(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Disconnected",
		Results: status,
	})
}

func (handler *WhatsApp) Logout(c *fiber.Ctx) error {
	err := handler.Service.Logout(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Logged out",
	})
}

func (handler *WhatsApp) QR(c *fiber.Ctx) error {
	qr, err := handler.Service.QR(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "QR code",
		Results: qr,
	})
}

func (handler *WhatsApp) PairPhone(c *fiber.Ctx) error {
	var request domainSession.PairPhoneRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidatePairPhone(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	pairCode, err := handler.Service.PairPhone(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pairing code issued",
		Results: map[string]any{"pair_code": pairCode},
	})
}

func (handler *WhatsApp) Settings(c *fiber.Ctx) error {
	settings, err := handler.Service.SessionSettings(c.UserContext(), villageID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session settings",
		Results: settings,
	})
}

func (handler *WhatsApp) CheckDuplicate(c *fiber.Ctx) error {
	result, err := handler.Service.CheckDuplicate(c.UserContext(), c.Query("village_id"), c.Query("wa_number"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Duplicate check",
		Results: result,
	})
}

func (handler *WhatsApp) ForceDisconnect(c *fiber.Ctx) error {
	var request domainSession.ForceDisconnectRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = validations.ValidateForceDisconnect(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	err = handler.Service.ForceDisconnectOther(c.UserContext(), villageID(c), request.TargetVillageID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Target session disconnected",
	})
}
