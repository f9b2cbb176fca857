package api

import (
	"fmt"
	"strings"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

const authorHeader = "X-Author-Id"

func authorMiddleware(c *fiber.Ctx) error {
	author := strings.TrimSpace(c.Get(authorHeader))
	if len(author) == 0 {
		return fiber.NewError(fiber.StatusUnauthorized, fmt.Sprintf("%s header is required", authorHeader))
	}
	c.Locals("author", author)
	return c.Next()
}

func openConversation(c *fiber.Ctx) (*services.Conversation, error) {
	author := c.Locals("author").(string)
	conv, err := pool.Acquire(c.UserContext(), c.Params("session"), author)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, fmt.Sprintf("unable to open session: %v", err))
	}
	return conv, nil
}

func getSessionState(c *fiber.Ctx) error {
	conv, err := openConversation(c)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"session": conv.SessionID(),
		"author":  conv.AuthorID(),
		"state":   services.StateName(conv.State()),
		"visible": len(conv.View(0)),
	})
}

func closeSession(c *fiber.Ctx) error {
	author := c.Locals("author").(string)
	if !pool.Release(c.Params("session"), author) {
		return fiber.NewError(fiber.StatusNotFound, "session is not open")
	}
	return c.SendStatus(fiber.StatusOK)
}
