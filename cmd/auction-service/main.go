package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agri-auction/internal/api/handlers"
	"agri-auction/internal/api/middleware"
	"agri-auction/internal/config"
	"agri-auction/internal/domain"
	"agri-auction/internal/infrastructure/leader"
	"agri-auction/internal/infrastructure/memory"
	"agri-auction/internal/infrastructure/mysql"
	"agri-auction/internal/infrastructure/redis"
	"agri-auction/internal/metrics"
	"agri-auction/internal/services"
	"agri-auction/pkg/logger"
	"agri-auction/pkg/utils"
)

const stateCacheTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "instance_id", cfg.Instance.ID,
		"store", cfg.Store.Driver, "notifications", cfg.Notifications.Driver)
	log.Info("Loaded configuration", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Store
	var store domain.AuctionStore
	switch cfg.Store.Driver {
	case "mysql":
		db, err := utils.OpenMySQL(ctx, cfg.MySQL)
		if err != nil {
			log.Fatal("Failed to connect to MySQL", "error", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Failed to close MySQL connection", "error", err)
			}
		}()
		log.Info("Connected to MySQL")
		store = mysql.NewMySQLAuctionStore(db)
	default:
		log.Warn("Using in-memory store, data is lost on restart")
		store = memory.NewStore()
	}

	// Redis backed components
	var (
		rdb            *redisClient.Client
		notifier       domain.Notifier = services.NewLogNotifier(log)
		stateCache     domain.AuctionStateCache
		incrementRules domain.IncrementRules
		leaderElection domain.LeaderElection
	)
	if needsRedis(cfg) {
		rdb = redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("Failed to close Redis connection", "error", err)
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		log.Info("Connected to Redis", "address", cfg.Redis.Address)

		stateCache = redis.NewRedisStateCache(rdb, stateCacheTTL)
		if cfg.Notifications.Driver == "redis" {
			notifier = redis.NewNotificationPublisher(rdb, cfg.Notifications.Channel)
		}
		if cfg.Auction.TieredIncrements {
			rules := redis.NewRedisIncrementRules(rdb)
			if err := rules.LoadRules(ctx); err != nil {
				log.Fatal("Failed to load increment rules", "error", err)
			}
			incrementRules = rules
		}
		if cfg.Leader.Enabled {
			leaderElection = leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	reservePolicy := services.IgnoreReserve
	if cfg.Auction.EnforceReserve {
		reservePolicy = services.EnforceReserve
	}

	auctionManager := services.NewAuctionManager(store, notifier, stateCache, incrementRules, log)
	bidService := services.NewBidService(store, services.NewBidValidator(cfg.Auction.AllowSelfBid),
		notifier, stateCache, m, log)
	settler := services.NewAuctionSettler(store, notifier, stateCache, reservePolicy, m, log)
	sweeper := services.NewSettlementSweeper(store, settler, leaderElection, cfg.Instance.ID,
		cfg.Auction.SweepInterval, m, log)

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger(log))

	handlers.NewAuctionHandler(auctionManager, bidService, settler, log).RegisterRoutes(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "auction-service",
			"instance_id": cfg.Instance.ID,
			"timestamp":   time.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Background work
	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if leaderElection != nil {
		// first attempt inline so the startup sweep can run as leader
		tryLead(background, leaderElection, cfg.Instance.ID, log)
		go campaign(background, leaderElection, cfg.Instance.ID, cfg.Leader.TTL, log)
	}

	if err := sweeper.Start(background); err != nil {
		log.Fatal("Failed to start settlement sweeper", "error", err)
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting HTTP server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := sweeper.Stop(); err != nil {
		log.Error("Failed to stop settlement sweeper", "error", err)
	}
	stopBackground()
	if leaderElection != nil {
		if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
			log.Error("Failed to release leadership", "error", err)
		}
	}

	log.Info("Auction service stopped")
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Notifications.Driver == "redis" || cfg.Leader.Enabled || cfg.Auction.TieredIncrements
}

// campaign keeps trying to take the settlement lease until ctx ends. The
// election renews the lease itself once held.
func campaign(ctx context.Context, election domain.LeaderElection, instanceID string, ttl time.Duration, log logger.Logger) {
	retry := ttl / 2
	if retry <= 0 {
		retry = 5 * time.Second
	}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tryLead(ctx, election, instanceID, log)
	}
}

func tryLead(ctx context.Context, election domain.LeaderElection, instanceID string, log logger.Logger) {
	leading, err := election.IsLeader(ctx, instanceID)
	if err == nil && !leading {
		var became bool
		became, err = election.BecomeLeader(ctx, instanceID)
		if became {
			log.Info("Became settlement leader", "instance_id", instanceID)
		}
	}
	if err != nil && ctx.Err() == nil {
		log.Error("Leader election attempt failed", "error", err)
	}
}
