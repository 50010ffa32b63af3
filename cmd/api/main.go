package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/reminder-service/internal/config"
	"github.com/Dan9191/reminder-service/internal/handler"
	"github.com/Dan9191/reminder-service/internal/integrations/cbr"
	"github.com/Dan9191/reminder-service/internal/middleware"
	"github.com/Dan9191/reminder-service/internal/notifier"
	"github.com/Dan9191/reminder-service/internal/reminder"
	"github.com/Dan9191/reminder-service/internal/repository"
	"github.com/Dan9191/reminder-service/internal/service"
	"github.com/Dan9191/reminder-service/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db, logger)
	cbrClient := cbr.NewCBRClient(cfg, logger)
	emailSender := email.NewSender(cfg, logger)
	outbox := notifier.NewOutbox(repo, cfg.ReminderEmail, logger)
	dispatcher := notifier.NewDispatcher(repo, emailSender, cfg.ReminderEmail, cfg.DispatchBatch, logger)
	scheduler := reminder.NewScheduler(outbox, logger,
		reminder.WithLocation(cfg.Timezone),
		reminder.WithHorizonDays(cfg.HorizonDays),
		reminder.WithCallTimeout(cfg.CallTimeout),
		reminder.WithLanguage(reminder.Language(cfg.Language)),
	)
	svc := service.NewService(repo, cbrClient, scheduler, logger, cfg)
	h := handler.NewHandler(svc, logger)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/health", h.Health).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg, logger))
	h.RegisterRoutes(authRouter)

	// Scheduled jobs
	c := cron.New(cron.WithLocation(cfg.Timezone))
	_, err = c.AddFunc(cfg.RebuildCron, func() {
		logger.Info("Starting scheduled reminder rebuild")
		result, err := svc.RebuildReminders(context.Background())
		if err != nil {
			logger.WithError(err).Error("Scheduled reminder rebuild failed")
			return
		}
		logger.WithFields(logrus.Fields{
			"enabled":           result.Enabled,
			"permission_denied": result.PermissionDenied,
			"scheduled":         result.Scheduled,
		}).Info("Scheduled reminder rebuild finished")
	})
	if err != nil {
		logger.Fatalf("Failed to schedule reminder rebuild: %v", err)
	}
	_, err = c.AddFunc(cfg.DispatchCron, func() {
		if _, err := dispatcher.DispatchDue(context.Background()); err != nil {
			logger.WithError(err).Error("Reminder dispatch failed")
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule reminder dispatch: %v", err)
	}
	c.Start()

	// Rebuild once on startup so reminders reflect the current data
	go func() {
		if _, err := svc.RebuildReminders(context.Background()); err != nil {
			logger.WithError(err).Warn("Initial reminder rebuild failed")
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	<-c.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}
