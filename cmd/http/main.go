package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/config"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/fx"
)

func main() {
	configPath := ""
	if len(os.Args) == 2 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	output := io.Writer(os.Stdout)
	if cfg.Log.File != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Log.File), 0777)
		logFile, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				panic(err)
			}
		}()
		output = io.MultiWriter(os.Stdout, logFile)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "relay-router",
		Level:  hclog.LevelFromString(cfg.Log.Level),
		Output: output,
	})

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(func() hclog.Logger { return logger }),
		engineModule(),
		telemetryModule(),
		serverModule(),
	)
	app.Run()
}
