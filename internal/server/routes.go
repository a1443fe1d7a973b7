package server

import (
	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// User routes
	apiRoutes.POST("/users", routes.CreateUserHandler)
	apiRoutes.GET("/users/:id/sessions", routes.GetUserSessionsHandler)
	apiRoutes.GET("/users/:id/graph", routes.GetUserGraphHandler)
	apiRoutes.GET("/users/:id/nodes/:node_id/references", routes.GetNodeReferencesHandler)

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.GET("/sessions/:id/messages", routes.GetMessagesHandler)
	apiRoutes.POST("/sessions/:id/messages", routes.PostMessageHandler)

	// Chat routes
	apiRoutes.GET("/chats/:id/references", routes.GetChatReferencesHandler)
}
