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

	"github.com/gorilla/mux"

	"bidding-core/internal/api/middleware"
	"bidding-core/internal/app"
	"bidding-core/internal/config"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/infrastructure/websocket"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Logging.Level).With("service", "bidding-service", "instance_id", cfg.Instance.ID)
	defer log.Sync()

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
		defer db.Close()
	}

	core, err := app.NewCore(ctx, cfg, rdb, db, log)
	if err != nil {
		log.Error("Failed to build bidding core", "error", err)
		os.Exit(1)
	}
	core.Start()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	connManager := websocket.NewConnectionManager(log)
	eventListener := services.NewEventListener(connManager, log)
	go func() {
		// Reconnect until shutdown; events published while disconnected are lost
		// and clients catch up from the snapshot they get on reconnect.
		for runCtx.Err() == nil {
			err := eventListener.Start(runCtx, redis.NewRedisEventSubscriber(rdb, log))
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Event listener stopped, retrying", "error", err)
			select {
			case <-runCtx.Done():
			case <-time.After(time.Second):
			}
		}
	}()

	scheduler := core.NewScheduler(cfg, rdb, log)
	if err := scheduler.Start(runCtx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	wsHandler := websocket.NewWebSocketHandler(core.Arbiter, core.Manager, connManager, core.Currency,
		websocket.HandlerConfig{
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			PongWait:       cfg.WebSocket.PongWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		}, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins, log))
	wsHandler.RegisterRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.WebSocket.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting bidding service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	if err := core.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to drain events", "error", err)
	}
	stopRun()

	log.Info("Bidding service stopped")
}
