package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/govconnect/channel-gateway/infrastructure/media"
	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/govconnect/channel-gateway/pkg/utils"
)

type Media struct {
	Storage *media.Storage
}

func InitRestMedia(app fiber.Router, storage *media.Storage) Media {
	rest := Media{Storage: storage}
	app.Post("/media/upload", rest.Upload)
	return rest
}

func (handler *Media) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		panic(pkgError.ValidationError("missing multipart file field"))
	}

	file, err := fileHeader.Open()
	utils.PanicIfNeeded(err)
	defer file.Close()

	saved, err := handler.Storage.SaveUpload(fileHeader.Filename, fileHeader.Size, file)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "File uploaded",
		Results: saved,
	})
}
