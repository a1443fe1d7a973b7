package main

import (
	"github.com/mindloom/backend/internal/server"
	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/logger"
	"github.com/mindloom/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
