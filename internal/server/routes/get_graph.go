package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/logger"
)

func GetUserGraphHandler(c echo.Context) error {
	type getUserGraphParams struct {
		UserID int64 `param:"id" validate:"required,numeric"`
	}

	params := new(getUserGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	nodes, err := app.Graph.GetUserNodes(ctx, params.UserID)
	if err != nil {
		logger.Error("Failed to get user nodes", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	edges, err := app.Graph.GetUserEdges(ctx, params.UserID)
	if err != nil {
		logger.Error("Failed to get user edges", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}
