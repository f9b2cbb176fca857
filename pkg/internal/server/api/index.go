package api

import (
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

var pool *services.ConversationPool

func MapAPIs(app *fiber.App, baseURL string, conversations *services.ConversationPool) {
	pool = conversations

	api := app.Group(baseURL).Name("API")
	{
		sessions := api.Group("/sessions/:session").Use(authorMiddleware).Name("Sessions API")
		{
			sessions.Get("/state", getSessionState)
			sessions.Delete("/", closeSession)

			sessions.Get("/messages", listMessages)
			sessions.Get("/messages/:messageId", getMessage)
			sessions.Post("/messages", sendMessage)
			sessions.Delete("/messages/:messageId", deleteMessage)
			sessions.Post("/messages/:messageId/translate", translateMessage)
		}
	}
}
