package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
)

func GetUserSessionsHandler(c echo.Context) error {
	type getUserSessionsParams struct {
		UserID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getUserSessionsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	sessions, err := app.Chats.ListUserSessions(ctx, params.UserID)
	if err != nil {
		logger.Error("Failed to list sessions", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}
