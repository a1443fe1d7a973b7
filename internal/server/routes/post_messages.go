package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/store"
)

func PostMessageHandler(c echo.Context) error {
	type postMessageParams struct {
		SessionID int64  `param:"id" validate:"required,numeric"`
		Text      string `json:"text" validate:"required"`
	}

	params := new(postMessageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	userMessage, therapistMessage, err := app.Sessions.GenerateResponse(ctx, params.SessionID, params.Text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Session not found"})
		}
		logger.Error("Failed to generate response", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"messages": []any{userMessage, therapistMessage},
	})
}
