package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/pkg/crypto"
	"github.com/mindloom/backend/pkg/logger"
)

func CreateUserHandler(c echo.Context) error {
	type createUserParams struct {
		Username string `json:"username" validate:"required"`
	}

	params := new(createUserParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	key, err := crypto.GenerateKey()
	if err != nil {
		logger.Error("Failed to generate encryption key", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	user, err := app.Chats.CreateUser(ctx, params.Username, key)
	if err != nil {
		logger.Error("Failed to create user", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}
