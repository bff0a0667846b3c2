package main

import (
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/config"
	"github.com/rovshanmuradov/gitup-custody/internal/console"
	"github.com/rovshanmuradov/gitup-custody/internal/server"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// В TUI логи пишутся только в файл, stdout занят интерфейсом
	logCfg := logger.DefaultConfig()
	logCfg.LogFile = "custodyctl.log"
	logCfg.FileOnly = true
	fileLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer fileLogger.Sync()

	store, err := server.OpenStorage(cfg.PostgresURL, fileLogger.Named("custodyctl"))
	if err != nil {
		fileLogger.Error("Failed to open ledger", zap.Error(err))
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer store.Close()

	p := tea.NewProgram(console.NewModel(store), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Console error: %v", err)
	}
}
