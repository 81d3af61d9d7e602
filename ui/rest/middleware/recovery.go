package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				var res utils.ResponseData
				res.Status = 500
				res.Code = "INTERNAL_SERVER_ERROR"
				res.Message = fmt.Sprintf("%v", err)

				genericError, ok := err.(pkgError.GenericError)
				if ok {
					res.Status = genericError.StatusCode()
					res.Code = genericError.ErrCode()
					res.Message = genericError.Error()
				} else {
					logrus.Errorf("Panic recovered in middleware: %v", err)
				}

				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
