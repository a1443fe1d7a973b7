package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
)

func GetChatReferencesHandler(c echo.Context) error {
	type getChatReferencesParams struct {
		ChatID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getChatReferencesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	references, err := app.Graph.GetChatReferences(ctx, params.ChatID)
	if err != nil {
		logger.Error("Failed to get chat references", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{"references": references})
}

func GetNodeReferencesHandler(c echo.Context) error {
	type getNodeReferencesParams struct {
		UserID int64 `param:"id" validate:"required,numeric"`
		NodeID int64 `param:"node_id" validate:"required,numeric"`
	}

	params := new(getNodeReferencesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	references, err := app.Graph.GetNodeReferences(ctx, params.NodeID, params.UserID)
	if err != nil {
		logger.Error("Failed to get node references", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{"references": references})
}
