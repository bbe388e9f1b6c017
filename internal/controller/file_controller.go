package controller

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"rag-chat-be/internal/pkg/serverutils"
	"rag-chat-be/internal/service"
)

type IFileController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Upload(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
}

type fileController struct {
	service        service.IFileService
	maxUploadBytes int64
}

func NewFileController(service service.IFileService, maxUploadBytes int) IFileController {
	return &fileController{service: service, maxUploadBytes: int64(maxUploadBytes)}
}

func (c *fileController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/files")
	h.Use(auth)
	h.Post("upload/:session_id", c.Upload)
	h.Get(":session_id", c.List)
}

func (c *fileController) Upload(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx, "session_id")
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Missing file")
	}
	if c.maxUploadBytes > 0 && fileHeader.Size > c.maxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "File too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	res, err := c.service.Upload(ctx.UserContext(), userId, sessionId, &service.UploadFileRequest{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse(res.Message, res))
}

func (c *fileController) List(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := sessionParam(ctx, "session_id")
	if err != nil {
		return err
	}

	res, err := c.service.List(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get files", res))
}
