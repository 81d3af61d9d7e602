package rest

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/domains/chat"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

// Pending exposes the pending-message queue for operator diagnostics.
type Pending struct {
	Repo chat.IPendingRepository
}

func InitRestPending(app fiber.Router, repo chat.IPendingRepository) Pending {
	rest := Pending{Repo: repo}
	app.Get("/pending", rest.List)
	return rest
}

func (handler *Pending) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	rows, err := handler.Repo.List(c.UserContext(), c.Query("village_id"), limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Pending messages",
		Results: map[string]interface{}{
			"count":    len(rows),
			"messages": rows,
		},
	})
}
