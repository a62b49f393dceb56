package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"bidding-core/internal/config"
	"bidding-core/internal/domain"
	"bidding-core/internal/infrastructure/mysql"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

const saveTimeout = 5 * time.Second

// AnalyticsService archives every committed auction event seen on the bus.
type AnalyticsService struct {
	subscriber domain.EventSubscriber
	archive    domain.EventArchive
	log        logger.Logger
}

func NewAnalyticsService(subscriber domain.EventSubscriber, archive domain.EventArchive, log logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		subscriber: subscriber,
		archive:    archive,
		log:        log,
	}
}

func (as *AnalyticsService) Start(ctx context.Context) error {
	as.log.Info("Starting analytics service")

	return as.subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()

		as.log.Debug("Archiving event", "auction_id", event.AuctionID, "type", event.Type, "version", event.Version)
		return as.archive.SaveEvent(saveCtx, event)
	})
}

// RegisterRoutes exposes the archived event history of an auction.
func (as *AnalyticsService) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auctions/{auctionID}/events", as.handleGetEvents).Methods(http.MethodGet)
}

func (as *AnalyticsService) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	events, err := as.archive.GetEvents(r.Context(), auctionID)
	if err != nil {
		as.log.Error("Failed to read event archive", "auction_id", auctionID, "error", err)
		http.Error(w, "event archive unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"auction_id": auctionID,
		"events":     events,
	}); err != nil {
		as.log.Warn("Failed to write event history", "auction_id", auctionID, "error", err)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Logging.Level).With("service", "analytics-service")
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := utils.InitializeRedis(ctx, cfg, log)
	if err != nil {
		os.Exit(1)
	}
	defer rdb.Close()

	db, err := utils.InitializeMysql(ctx, cfg, log)
	if err != nil {
		os.Exit(1)
	}
	defer db.Close()

	if cfg.MySQL.AutoMigrate {
		if err := mysql.Migrate(ctx, db); err != nil {
			log.Error("Failed to migrate schema", "error", err)
			os.Exit(1)
		}
	}

	analyticsService := NewAnalyticsService(redis.NewRedisEventSubscriber(rdb, log), mysql.NewEventArchive(db), log)

	runCtx, stopRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for runCtx.Err() == nil {
			err := analyticsService.Start(runCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Analytics subscription failed, retrying", "error", err)
			select {
			case <-runCtx.Done():
			case <-time.After(time.Second):
			}
		}
	}()

	router := mux.NewRouter()
	analyticsService.RegisterRoutes(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Analytics.Port),
		Handler: router,
	}
	go func() {
		log.Info("Starting analytics HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down analytics service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stopRun()
	<-done
	log.Info("Analytics service stopped")
}
