package main

import (
	"context"
	"log"
	"os"

	"github.com/multiplycharity/multiply-monorepo/internal/client/cli"
	"github.com/multiplycharity/multiply-monorepo/internal/client/config"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
