package main

import (
	"context"
	"log"
	"os"

	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
