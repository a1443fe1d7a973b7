package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/store"
)

func GetMessagesHandler(c echo.Context) error {
	type getMessagesParams struct {
		SessionID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getMessagesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	messages, err := app.Sessions.SessionMessages(ctx, params.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Session not found"})
		}
		logger.Error("Failed to get session messages", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}
