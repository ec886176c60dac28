package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"xui-sub-backend/internal/config"
	"xui-sub-backend/internal/handlers"
	"xui-sub-backend/internal/services"
	"xui-sub-backend/internal/storage"
	"xui-sub-backend/internal/web"
	"xui-sub-backend/pkg/panelclient"
	"xui-sub-backend/pkg/telegrambot"
)

func main() {
	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}

	// Open credential store
	store, err := storage.New(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open storage: ", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to migrate storage: ", err)
	}

	// Initialize services
	panel := panelclient.NewClient(cfg.Panel, logger)
	provisioner := services.NewProvisioner(store, panel, cfg.Panel.InboundID, cfg.Provision.LocalFallback, logger)
	qrService := services.NewQRService(logger)

	// Initialize bot
	subscriberHandler := handlers.NewSubscriberHandler(provisioner, store, qrService, cfg, logger)
	bot, err := telegrambot.NewBot(cfg, subscriberHandler, logger)
	if err != nil {
		logger.Fatal("Failed to create bot: ", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	// Start reminder sweeper
	reminder := services.NewReminder(store, bot, services.SystemClock(), logger)
	go reminder.Start(ctx)

	// Start HTTP API
	apiHandler := web.NewHandler(provisioner, store, cfg.Panel.APIURL != "", logger)
	router := web.NewRouter(apiHandler, cfg.Telegram.Token, logger)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting HTTP API on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: ", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server shutdown failed: %v", err)
		}
	}()

	// Start bot
	logger.Info("Starting VPN subscription bot")
	if err := bot.Start(ctx); err != nil {
		logger.Fatal("Bot failed: ", err)
	}
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}
