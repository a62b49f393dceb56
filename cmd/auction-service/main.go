package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bidding-core/internal/api/handlers"
	"bidding-core/internal/app"
	"bidding-core/internal/config"
	"bidding-core/internal/domain"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Logging.Level).With("service", "auction-service", "instance_id", cfg.Instance.ID)
	defer log.Sync()
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := utils.InitializeRedis(ctx, cfg, log)
	if err != nil {
		os.Exit(1)
	}
	defer rdb.Close()

	var db *sql.DB
	if cfg.Store.Driver == "mysql" {
		db, err = utils.InitializeMysql(ctx, cfg, log)
		if err != nil {
			os.Exit(1)
		}
		defer func(db *sql.DB) {
			if err := db.Close(); err != nil {
				log.Error("Failed to close MySQL connection", "error", err)
			}
		}(db)
		log.Info("Connected to MySQL")
	}

	core, err := app.NewCore(ctx, cfg, rdb, db, log)
	if err != nil {
		log.Error("Failed to build bidding core", "error", err)
		os.Exit(1)
	}
	core.Start()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	// The hub is fed from the bus so streams include commits from every instance.
	hub := services.NewEventHub(cfg.Events.SubscriberBuffer, log)
	subscriber := redis.NewRedisEventSubscriber(rdb, log)
	go func() {
		err := subscriber.SubscribeToAuctionEvents(runCtx, func(event *domain.AuctionEvent) error {
			return hub.PublishAuctionEvent(runCtx, event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event bus subscription ended", "error", err)
		}
	}()

	scheduler := core.NewScheduler(cfg, rdb, log)
	if err := scheduler.Start(runCtx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("Request handled", "request_id", v.RequestID, "method", v.Method,
				"uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
			return nil
		},
	}))

	allowOrigins := cfg.Server.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handlers.HeaderBidderID,
			handlers.HeaderIdempotencyKey,
		},
		MaxAge: 86400,
	}))

	auctionHandler := handlers.NewAuctionHandler(core.Manager, core.Arbiter, hub, core.Currency, log)
	auctionHandler.Register(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"instance":  cfg.Instance.ID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	e.Server.RegisterOnShutdown(hub.Close)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	if err := core.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to drain events", "error", err)
	}
	stopRun()

	log.Info("Auction service stopped")
}
