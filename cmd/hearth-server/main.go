package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store/sqlstore"
	"github.com/existflow/hearth/server"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "sqlite://hearth.db")

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	logCfg.FilePath = os.Getenv("LOG_FILE")
	logCfg.Console = true
	if err := logger.Init(logCfg); err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Default()

	st, err := sqlstore.Open(dbURL, log)
	if err != nil {
		log.Error("failed to open store", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("error closing store", logger.Err(err))
		}
	}()

	opts := server.DefaultOptions()
	opts.MaterializeSpec = getEnv("HEARTH_MATERIALIZE_CRON", opts.MaterializeSpec)

	srv, err := server.New(st, log, opts)
	if err != nil {
		log.Error("failed to create server", logger.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(":" + port)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Err(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", logger.Err(err))
		}
	}
}
