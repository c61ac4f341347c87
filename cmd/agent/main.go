package main

import (
	"fmt"
	"os"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
	"github.com/orbitalk/agent/internal/httpapi"
	"github.com/orbitalk/agent/internal/orchestrator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	v, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := commons.NewLogger(commons.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	app := orchestrator.NewApp(cfg, logger)
	engine := httpapi.NewEngine(cfg, logger, app)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Infow("agent: listening", "addr", addr)
	return engine.Run(addr)
}
