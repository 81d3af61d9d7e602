package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/domains/health"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type Health struct {
	Service health.IHealthUsecase
}

func InitRestHealth(app fiber.Router, service health.IHealthUsecase) Health {
	rest := Health{Service: service}
	app.Get("/health", rest.Check)
	return rest
}

func (handler *Health) Check(c *fiber.Ctx) error {
	report := handler.Service.Check(c.UserContext())

	status := 200
	if report.Status == health.StatusDown {
		status = 503
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "SUCCESS",
		Message: "Health report",
		Results: report,
	})
}
