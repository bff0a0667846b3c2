package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/config"
	"github.com/rovshanmuradov/gitup-custody/internal/server"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("Failed to load config", zap.String("path", *configPath), zap.Error(err))
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("Failed to initialize logger", zap.Error(err))
	}
	log.Info("Starting GitUp custody service")

	runner := server.NewRunner(log.Logger)
	defer runner.Sync()

	if err := runner.InitializeWithConfig(cfg); err != nil {
		log.Fatal("Failed to initialize custody service", zap.Error(err))
		os.Exit(1)
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Custody service error", zap.Error(err))
		os.Exit(1)
	}
}
