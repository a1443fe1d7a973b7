package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mindloom/backend/internal/events"
	mid "github.com/mindloom/backend/internal/server/middleware"
	"github.com/mindloom/backend/internal/session"
	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/ai"
	oai "github.com/mindloom/backend/pkg/ai/ollama"
	gai "github.com/mindloom/backend/pkg/ai/openai"
	"github.com/mindloom/backend/pkg/graph"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/nlp"
	"github.com/mindloom/backend/pkg/store"
	pgstore "github.com/mindloom/backend/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runMigrations()

	poolConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to parse database config", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	aiClient := newAIClient()

	graphStore := pgstore.NewGraphDBStorage(pgstore.NewGraphDBStorageParams{
		Conn:      conn,
		NodeTypes: util.GetEnvList("NODE_TYPES", store.DefaultNodeTypes),
	})
	chatStore := pgstore.NewChatDBStorage(conn)

	var notifier graph.Notifier
	if util.GetEnvBool("RABBITMQ_ENABLED", false) {
		amqpConn, publisher, err := events.Connect()
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer amqpConn.Close()
		notifier = publisher
	}

	extractor := graph.NewExtractor(graph.NewExtractorParams{
		Client:    aiClient,
		Model:     util.GetEnvString("AI_CHAT_EXTRACT_MODEL", ""),
		NodeTypes: util.GetEnvList("NODE_TYPES", store.DefaultNodeTypes),
	})
	processor := graph.NewProcessor(graph.NewProcessorParams{
		Store:     graphStore,
		Extractor: extractor,
		Tokenizer: nlp.NewTokenizer(),
		Notifier:  notifier,
	})
	queue := graph.NewQueue(processor)
	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Graph worker stopped", "err", err)
		}
	}()

	sessions := session.NewService(session.NewServiceParams{
		Chats:  chatStore,
		Client: aiClient,
		Queue:  queue,
		Model:  util.GetEnvString("AI_CHAT_MODEL", ""),
	})

	app := &mid.App{
		DBConn:   conn,
		Graph:    graphStore,
		Chats:    chatStore,
		Sessions: sessions,
		AiClient: aiClient,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(echomw.CORS())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func runMigrations() {
	m, err := migrate.New(
		util.GetEnvString("MIGRATIONS_URL", "file://migrations"),
		util.GetEnv("DATABASE_URL"),
	)
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

func newAIClient() ai.GraphAIClient {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}
}
