package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arbflow/config"
	"arbflow/internal/dashboard"
	"arbflow/internal/engine"
	"arbflow/internal/metrics"
	"arbflow/internal/venue"
	"arbflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Arbflow.Name,
		"version": cfg.Arbflow.Version,
	}).Info("starting arbflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Address)
	}
	if cfg.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.CloudWatch)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		metrics.StartReport(ctx, log, 30*time.Second)
	}

	sources, fxSource := venue.Build(cfg)

	eng, err := engine.New(cfg.Engine, sources, fxSource)
	if err != nil {
		log.WithError(err).Error("failed to build engine")
		os.Exit(1)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, eng, log)
	if err != nil {
		log.WithError(err).Error("failed to build dashboard")
		os.Exit(1)
	}
	if dash != nil {
		eng.OnTick(dash.PublishTick)
		eng.OnAgeTick(dash.PublishAges)
	}

	var wg sync.WaitGroup
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Arbflow.Name); err != nil {
				log.WithError(err).Error("dashboard server failed")
			}
		}()
		log.WithFields(logger.Fields{"address": dash.Address()}).Info("dashboard listening")
	}

	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start engine")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping engine")
	eng.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("arbflow stopped")
}
