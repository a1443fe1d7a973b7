package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/mindloom/backend/internal/session"
	"github.com/mindloom/backend/pkg/ai"
	"github.com/mindloom/backend/pkg/store"
)

// App bundles the long-lived collaborators every handler needs.
type App struct {
	DBConn   *pgxpool.Pool
	Graph    store.GraphStore
	Chats    store.ChatStore
	Sessions *session.Service
	AiClient ai.GraphAIClient
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware wraps every request context with the shared App.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
