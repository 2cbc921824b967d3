package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/staticd/internal/resource"
	"github.com/Brownie44l1/staticd/internal/server"
	"github.com/Brownie44l1/staticd/web"
)

func main() {
	logger := server.NewLogger(os.Stdout, logrus.InfoLevel)

	store, err := resource.Load(web.Static())
	if err != nil {
		logger.Error("load static resources", server.Field{Key: "error", Value: err})
		os.Exit(1)
	}
	logger.Info("static resources loaded", server.Field{Key: "files", Value: store.Len()})

	config := server.DefaultConfig()
	srv := server.New(config, resource.NewResolver(store))
	srv.Logger = logger

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			logger.Error("server error", server.Field{Key: "error", Value: err})
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("shutting down", server.Field{Key: "signal", Value: sig.String()})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", server.Field{Key: "error", Value: err})
	}

	stats := srv.Stats()
	logger.Info("server stopped",
		server.Field{Key: "connections", Value: stats.ConnectionsTotal},
		server.Field{Key: "requests", Value: stats.RequestsTotal},
		server.Field{Key: "not_found", Value: stats.NotFoundTotal},
		server.Field{Key: "idle_timeouts", Value: stats.IdleTimeouts},
		server.Field{Key: "avg_latency", Value: stats.AverageLatency.String()},
	)
}
