package api

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/server/exts"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func listMessages(c *fiber.Ctx) error {
	take := c.QueryInt("take", 0)

	conv, err := openConversation(c)
	if err != nil {
		return err
	}

	messages := conv.View(take)
	return c.JSON(fiber.Map{
		"count": len(messages),
		"data":  messages,
	})
}

func getMessage(c *fiber.Ctx) error {
	conv, err := openConversation(c)
	if err != nil {
		return err
	}

	message, ok := conv.Message(c.Params("messageId"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "message not found")
	}
	return c.JSON(message)
}

func stagedFiles(c *fiber.Ctx) ([]services.StagedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}

	var out []services.StagedFile
	for _, header := range form.File["files"] {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %v", header.Filename, err)
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %v", header.Filename, err)
		}
		out = append(out, services.StagedFile{
			Name:        header.Filename,
			ContentType: header.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}
	return out, nil
}

func sendMessage(c *fiber.Ctx) error {
	var data struct {
		Text    string `json:"text" form:"text"`
		ReplyTo string `json:"reply_to" form:"reply_to"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}
	files, err := stagedFiles(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	conv, err := openConversation(c)
	if err != nil {
		return err
	}

	var replyTo *string
	if len(strings.TrimSpace(data.ReplyTo)) > 0 {
		replyTo = &data.ReplyTo
	}
	message, err := conv.Send(c.UserContext(), data.Text, files, replyTo)

	var partial *services.PartialAttachmentFailure
	switch {
	case err == nil:
		return c.JSON(message)
	case errors.As(err, &partial):
		failed := lo.Map(partial.Failed, func(item services.AttachmentFailure, _ int) string {
			return item.FileName
		})
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"message": message,
			"failed":  failed,
		})
	case errors.Is(err, services.ErrInvalidSendRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func deleteMessage(c *fiber.Ctx) error {
	id := c.Params("messageId")

	conv, err := openConversation(c)
	if err != nil {
		return err
	}

	if message, ok := conv.Message(id); !ok {
		return fiber.NewError(fiber.StatusNotFound, "message not found")
	} else if message.AuthorID != conv.AuthorID() {
		return fiber.NewError(fiber.StatusForbidden, "unable to delete message of others")
	}

	if err := conv.Delete(c.UserContext(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusOK)
}

func translateMessage(c *fiber.Ctx) error {
	id := c.Params("messageId")

	var data struct {
		Lang string `json:"lang" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	conv, err := openConversation(c)
	if err != nil {
		return err
	}
	if _, ok := conv.Message(id); !ok {
		return fiber.NewError(fiber.StatusNotFound, "message not found")
	}

	conv.Translate(c.UserContext(), id, data.Lang)

	message, _ := conv.Message(id)
	return c.JSON(message)
}
