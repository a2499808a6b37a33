// Package main starts the backtest API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/candleworks/backtest/internal/api"
	"github.com/candleworks/backtest/internal/data"
	"github.com/candleworks/backtest/internal/strategy"
	"github.com/candleworks/backtest/pkg/types"
)

func main() {
	var (
		host       = flag.String("host", "", "server host (overrides config)")
		port       = flag.Int("port", 0, "server port (overrides config)")
		dataDir    = flag.String("data", "", "candle data directory (overrides config)")
		configFile = flag.String("config", "", "path to a config file")
		logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	config, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *host != "" {
		config.Host = *host
	}
	if *port != 0 {
		config.Port = *port
	}
	if *dataDir != "" {
		config.DataDir = *dataDir
	}

	logger.Info("Starting backtest server",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dataDir", config.DataDir))

	store, err := data.NewStore(logger, config.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}

	registry := strategy.NewRegistry(logger)
	server := api.NewServer(logger, config, store, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// loadConfig merges defaults, an optional config file and BACKTEST_* env
// variables into a ServerConfig.
func loadConfig(path string) (*types.ServerConfig, error) {
	v := viper.New()

	defaults := types.DefaultServerConfig()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("dataDir", defaults.DataDir)
	v.SetDefault("readTimeout", defaults.ReadTimeout)
	v.SetDefault("writeTimeout", defaults.WriteTimeout)
	v.SetDefault("enableMetrics", defaults.EnableMetrics)
	v.SetDefault("allowedOrigins", []string{"*"})

	v.SetEnvPrefix("BACKTEST")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return &types.ServerConfig{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		DataDir:        v.GetString("dataDir"),
		ReadTimeout:    v.GetDuration("readTimeout"),
		WriteTimeout:   v.GetDuration("writeTimeout"),
		EnableMetrics:  v.GetBool("enableMetrics"),
		AllowedOrigins: v.GetStringSlice("allowedOrigins"),
	}, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
