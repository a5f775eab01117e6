package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taranp/isolab/internal/api"
	"github.com/taranp/isolab/internal/narrator"
	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/internal/scenario"
	"github.com/taranp/isolab/pkg/errors"
	"github.com/taranp/isolab/pkg/logger"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "load config"))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "init logger"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	defer cancel()

	store, err := orders.New(ctx, cfg.Postgres, log)
	if err != nil {
		log.Panic(errors.WrapFail(err, "init orders storage"))
	}

	hub := narrator.New(log)
	runner := scenario.NewRunner(store, hub, cfg.Scenario.Unit, log)
	server := api.NewServer(cfg.API, log, runner, store, hub)

	stopped := make(chan struct{})
	context.AfterFunc(ctx, func() {
		stdlog.Println("Graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(err)
		}
		hub.Close()
		if err := store.Close(); err != nil {
			log.Error(err)
		}

		close(stopped)
	})

	log.Infof("serving on %s (%s)", cfg.API.HTTP.Addr, cfg.Environment)

	err = server.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		log.Panic(errors.WrapFail(err, "serve http"))
	}

	<-stopped
	stdlog.Println("Shutdown complete")
}
