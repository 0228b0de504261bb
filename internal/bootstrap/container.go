package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os"

	"loyalty-rewards-be/internal/config"
	"loyalty-rewards-be/internal/controller"
	"loyalty-rewards-be/internal/handler"
	"loyalty-rewards-be/internal/pkg/logger"
	"loyalty-rewards-be/internal/repository/contract"
	"loyalty-rewards-be/internal/repository/implementation"
	"loyalty-rewards-be/internal/repository/memory"
	"loyalty-rewards-be/internal/service"
	"loyalty-rewards-be/internal/websocket"
	pktNats "loyalty-rewards-be/pkg/nats"
	"loyalty-rewards-be/pkg/tour"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	TourController controller.ITourController

	// WebSockets
	TourStreamHandler *handler.TourStreamHandler
	WebSocketHub      *websocket.Hub

	// Background Services (started by Start)
	TourService    service.ITourService
	RefreshService *service.RefreshService
	HistoryService *service.TourHistoryService

	Logger logger.ILogger

	pubSub  *gochannel.GoChannel
	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
}

// NewContainer wires the application. db may be nil; history is then
// disabled and the postgres store is unavailable.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	registry, err := loadRegistry(cfg.Tour.RegistryPath)
	if err != nil {
		return nil, err
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	rdb := newRedisClient(cfg.App.RedisURL)

	// Tour state store
	store, err := newTourStore(cfg.Tour.Store, rdb, db)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Using tour store: %s", cfg.Tour.Store)

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger, service.MessageTourState, service.MessageRewardsRefresh)

	// 4. Services
	var eventBus service.EventPublisher
	if natsPub != nil {
		eventBus = natsPub
	}
	flagPublisher := service.NewTourEventPublisher(pubSub, service.TourFlagTopic, eventBus, sysLogger)

	tourService := service.NewTourService(service.TourServiceOptions{
		Registry:    registry,
		Store:       store,
		Observer:    flagPublisher,
		Delivery:    wsHub,
		Logger:      sysLogger,
		RevealDelay: cfg.Tour.RevealDelay,
		FlagTTL:     cfg.Tour.FlagTTL,
		SessionTTL:  cfg.Tour.SessionTTL,
	})

	refreshService := service.NewRefreshService(store, pubSub, service.TourFlagTopic, wsHub, cfg.Tour.RefreshInterval, wsLogger)

	var eventRepo contract.TourEventRepository
	if db != nil {
		eventRepo = implementation.NewTourEventRepository(db)
	}
	historyService := service.NewTourHistoryService(eventRepo, natsSub, sysLogger)

	// 5. Controllers
	return &Container{
		TourController:    controller.NewTourController(tourService, historyService, cfg.App.JwtSecret),
		TourStreamHandler: handler.NewTourStreamHandler(tourService, wsHub, cfg.App.JwtSecret, wsLogger),
		WebSocketHub:      wsHub,
		TourService:       tourService,
		RefreshService:    refreshService,
		HistoryService:    historyService,
		Logger:            sysLogger,
		pubSub:            pubSub,
		natsPub:           natsPub,
		natsSub:           natsSub,
		rdb:               rdb,
	}, nil
}

// Start runs the hub and background workers until ctx is done.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.RefreshService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresh service: %w", err)
	}
	go c.HistoryService.Start()
	return nil
}

// Close abandons open tours, then releases connections. Order matters:
// tour endings are still published while the buses are up.
func (c *Container) Close(ctx context.Context) {
	c.TourService.Close(ctx)

	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Container", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	_ = c.Logger.Sync()
}

func loadRegistry(path string) (*tour.Registry, error) {
	if path == "" {
		return tour.DefaultRegistry()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tooltip registry: %w", err)
	}
	defer f.Close()

	registry, err := tour.LoadRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load tooltip registry %s: %w", path, err)
	}
	return registry, nil
}

func newRedisClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	return rdb
}

func newTourStore(kind string, rdb *redis.Client, db *gorm.DB) (tour.Store, error) {
	switch kind {
	case config.StoreMemory:
		return memory.NewTourStateRepository(), nil
	case config.StoreRedis:
		return implementation.NewRedisTourStateRepository(rdb), nil
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("TOUR_STORE=postgres requires DB_CONNECTION_STRING")
		}
		return implementation.NewTourStateRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown TOUR_STORE %q", kind)
	}
}
