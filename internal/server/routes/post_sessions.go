package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/store"
)

func CreateSessionHandler(c echo.Context) error {
	type createSessionParams struct {
		UserID        int64  `json:"user_id" validate:"required,numeric"`
		TherapistName string `json:"therapist_name" validate:"required"`
	}

	params := new(createSessionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if _, err := app.Chats.GetUser(ctx, params.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "User not found"})
		}
		logger.Error("Failed to get user", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	session, opening, err := app.Sessions.StartSession(ctx, params.UserID, params.TherapistName)
	if err != nil {
		logger.Error("Failed to start session", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"session": session,
		"opening": opening,
	})
}
