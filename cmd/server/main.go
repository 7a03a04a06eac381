package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuforge/ragcore/internal/api"
	"github.com/docuforge/ragcore/internal/composition"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := composition.Load()
	ctx := context.Background()

	reg, err := composition.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build adapter registry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Error("error during adapter shutdown", "error", err)
		}
	}()

	queueCtx, cancelQueue := context.WithCancel(ctx)
	defer cancelQueue()
	go func() {
		if err := reg.Queue.Run(queueCtx); err != nil {
			slog.Error("ingest queue stopped", "error", err)
		}
	}()

	router := api.NewRouter(api.RouterDeps{
		WorkspaceService: reg.Workspace,
		DocumentService:  reg.Document,
		RAGEngine:        reg.RAG,
		Verifier:         reg.Auth,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	cancelQueue()
	slog.Info("server stopped")
}
