package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bankcore/internal/app"
	"bankcore/internal/config"
	apphttp "bankcore/internal/http"
	"bankcore/internal/market"
	"bankcore/internal/scheduler"
)

var version = "dev"

func main() {
	logger := app.NewLogger("info")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bank, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer bank.Close()

	if err := bank.EnsureDirector(ctx, cfg); err != nil {
		logger.Fatalf("bootstrap director: %v", err)
	}

	engine := market.NewEngine(market.Config{
		MaxConcurrent: cfg.Market.Workers,
		SweepInterval: cfg.Market.SweepInterval,
		Logger:        logger,
	}, bank.Market)
	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("start matching engine: %v", err)
	}
	if err := engine.Resume(ctx); err != nil {
		logger.Warnf("resume orders: %v", err)
	}

	jobs, err := scheduler.New(scheduler.Config{
		InterestSpec:    cfg.Scheduler.Interest,
		InstallmentSpec: cfg.Scheduler.Installments,
		StatementSpec:   cfg.Scheduler.Statements,
		Timeout:         cfg.Scheduler.Timeout,
		Location:        cfg.Location(),
		Logger:          logger,
	}, scheduler.Jobs{
		Savings:    bank.Savings,
		Credits:    bank.Credits,
		Statements: bank.Statements,
	})
	if err != nil {
		logger.Fatalf("setup scheduler: %v", err)
	}
	jobs.Start()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(bank.DB, logger, version).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("ops listener on %s", cfg.Server.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	jobs.Stop(shutdownCtx)
	engine.Shutdown()

	logger.Info("bye")
}
