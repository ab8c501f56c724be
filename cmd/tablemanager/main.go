package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/tablesync/internal/config"
	"github.com/ceyewan/tablesync/internal/examplemodels"
	"github.com/ceyewan/tablesync/internal/httpapi"
	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/primarystore/mongostore"
	"github.com/ceyewan/tablesync/internal/search"
	"github.com/ceyewan/tablesync/internal/tablemanager"
)

func main() {
	logger := logging.Namespace("tablemanager")
	logger.Info("starting tablesync")

	models := examplemodels.All()

	cfg, err := config.Load(len(models))
	if err != nil {
		logger.Error("loading config failed", logging.Err(err))
		os.Exit(1)
	}

	searchClient, err := search.New(search.Config{
		Addresses:   cfg.ES.Addresses,
		Username:    cfg.ES.Username,
		Password:    cfg.ES.Password,
		APIKey:      cfg.ES.APIKey,
		PoolSize:    cfg.ES.PoolSize,
		IdlePool:    cfg.ES.IdlePool,
		PoolTimeout: cfg.ES.PoolTimeout,
	}, logger.With(logging.String("sub_component", "search")))
	if err != nil {
		logger.Error("connecting to search cluster failed", logging.Err(err))
		os.Exit(1)
	}

	ctx, cancelStore := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := mongostore.Connect(ctx, cfg.PrimaryStoreURI, "tablesync")
	cancelStore()
	if err != nil {
		logger.Error("connecting to primary store failed", logging.Err(err))
		os.Exit(1)
	}

	mgr, err := tablemanager.New(context.Background(), models, searchClient, store, cfg.Backfill, cfg.Watch,
		tablemanager.WithLogger(logger.With(logging.String("sub_component", "tablemanager"))))
	if err != nil {
		logger.Error("starting table manager failed", logging.Err(err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.New(mgr, logger.With(logging.String("sub_component", "httpapi"))),
	}

	go func() {
		logger.Info("http server listening", logging.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", logging.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	mgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", logging.Err(err))
	}

	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("closing primary store failed", logging.Err(err))
	}

	logger.Info("shutdown complete")
}
