package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/adapter/cache"
	"github.com/seu-repo/echarge/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/echarge/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/echarge/internal/adapter/pilelink"
	"github.com/seu-repo/echarge/internal/adapter/queue"
	"github.com/seu-repo/echarge/internal/adapter/storage/memory"
	"github.com/seu-repo/echarge/internal/adapter/storage/postgres"
	wsAdapter "github.com/seu-repo/echarge/internal/adapter/websocket"
	"github.com/seu-repo/echarge/internal/ports"
	"github.com/seu-repo/echarge/internal/service/billing"
	"github.com/seu-repo/echarge/internal/service/station"
	"github.com/seu-repo/echarge/internal/service/tariff"
	"github.com/seu-repo/echarge/pkg/config"
)

const (
	serviceName    = "echarge"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting E-Charge station service",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize Storage (PostgreSQL, or in-memory when unconfigured)
	var (
		requestRepo ports.RequestRepository
		sessionRepo ports.SessionRepository
		billRepo    ports.BillRepository
		pileRepo    ports.PileRepository
	)
	if cfg.Database.URL != "" {
		db, err := postgres.NewConnection(cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer postgres.Close(db)
		requestRepo = postgres.NewRequestRepository(db, logger)
		sessionRepo = postgres.NewSessionRepository(db, logger)
		billRepo = postgres.NewBillRepository(db, logger)
		pileRepo = postgres.NewPileRepository(db, logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		store := memory.NewStore()
		requestRepo = store.Requests()
		sessionRepo = store.Sessions()
		billRepo = store.Bills()
		pileRepo = store.Piles()
	}

	// 4. Initialize Cache (Redis, local fallback)
	var stationCache ports.Cache
	if cfg.Redis.URL != "" {
		stationCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis not available, using local cache", zap.Error(err))
			stationCache = nil
		}
	}
	if stationCache == nil {
		stationCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer stationCache.Close()

	// 5. Initialize Message Queue (NATS preferred, RabbitMQ fallback)
	var messageQueue queue.MessageQueue
	if cfg.NATS.URL != "" {
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("NATS not available", zap.Error(err))
			messageQueue = nil
		}
	}
	if messageQueue == nil && cfg.RabbitMQ.URL != "" {
		messageQueue, err = queue.NewRabbitMQQueue(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available", zap.Error(err))
			messageQueue = nil
		}
	}
	if messageQueue == nil {
		logger.Warn("running without message queue")
	} else {
		defer messageQueue.Close()
	}

	// 6. Initialize the Station core
	calc := tariff.NewCalculator(cfg.Billing)
	billStore := billing.NewStore(calc, sessionRepo, billRepo, messageQueue, logger)
	st, err := station.New(cfg.Station, billStore, requestRepo, pileRepo, messageQueue, logger)
	if err != nil {
		logger.Fatal("Failed to build station", zap.Error(err))
	}

	// 7. Pile-link server + command transport
	pileServer := pilelink.NewServer(st, logger)
	commander := pilelink.NewCommander(pileServer, st, cfg.PileLink, logger)
	st.AttachPileLink(commander)
	go func() {
		if err := pileServer.Start(cfg.PileLink.Port); err != nil {
			logger.Fatal("pile-link server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.Start(ctx)

	// 8. WebSocket hub for live dashboard updates
	wsHub := wsAdapter.NewHub()
	go wsHub.Run()
	if messageQueue != nil {
		startEventFanout(messageQueue, wsHub, stationCache, logger)
	}

	// 9. Fiber HTTP server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.HTTP.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := stationCache.Ping(); err != nil {
			return c.Status(503).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	v1 := app.Group("/api/v1")

	chargingHandler := handlers.NewChargingHandler(st, logger)
	v1.Post("/charging/requests", chargingHandler.Submit)
	v1.Get("/charging/status", chargingHandler.Status)
	v1.Patch("/charging/requests/target", chargingHandler.ModifyTarget)
	v1.Patch("/charging/requests/mode", chargingHandler.ModifyMode)
	v1.Delete("/charging/requests/:id", chargingHandler.Cancel)
	v1.Post("/charging/stop", chargingHandler.Stop)
	v1.Get("/charging/records", chargingHandler.Records)

	adminHandler := handlers.NewAdminHandler(st, logger)
	admin := v1.Group("/admin")
	admin.Get("/piles", adminHandler.ListPiles)
	admin.Get("/piles/:id", adminHandler.PileDetail)
	admin.Post("/piles/:id/fault", adminHandler.SetFault)
	admin.Post("/piles/:id/recover", adminHandler.Recover)
	admin.Post("/piles/:id/start", adminHandler.StartPile)
	admin.Post("/piles/:id/stop", adminHandler.StopPile)
	admin.Get("/dispatch-policy", adminHandler.Policy)
	admin.Put("/dispatch-policy", adminHandler.SetDispatchPolicy)
	admin.Get("/waiting-area", adminHandler.WaitingArea)
	admin.Get("/statistics", adminHandler.Statistics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		userID := c.Query("userId", "guest")
		wsHub.AddClient(c, userID)
	}))

	// 10. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 11. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	pileServer.Stop()

	logger.Info("Server exited gracefully")
}

// startEventFanout relays station events to dashboard websockets and keeps
// the daily revenue report warm in the cache.
func startEventFanout(mq queue.MessageQueue, hub *wsAdapter.Hub, c ports.Cache, logger *zap.Logger) {
	relay := func(subject string) {
		if err := mq.Subscribe(subject, func(data []byte) error {
			hub.Broadcast(data)
			return nil
		}); err != nil {
			logger.Warn("failed to subscribe", zap.String("subject", subject), zap.Error(err))
		}
	}
	for _, subject := range []string{
		queue.SubjectRequestAdmitted,
		queue.SubjectRequestDispatched,
		queue.SubjectRequestCancelled,
		queue.SubjectSessionStarted,
		queue.SubjectSessionProgress,
		queue.SubjectSessionCompleted,
		queue.SubjectPileFault,
		queue.SubjectPileRecovered,
	} {
		relay(subject)
	}

	type dailyReport struct {
		Day       string  `json:"day"`
		Bills     int     `json:"bills"`
		EnergyKWH float64 `json:"energy_kwh"`
		Revenue   float64 `json:"revenue"`
	}
	if err := mq.Subscribe(queue.SubjectBillCreated, func(data []byte) error {
		hub.Broadcast(data)

		var bill struct {
			EnergyKWH float64 `json:"energy_kwh"`
			TotalCost string  `json:"total_cost"`
			CreatedAt string  `json:"created_at"`
		}
		if err := json.Unmarshal(data, &bill); err != nil {
			return nil
		}
		day := time.Now().Format("20060102")
		key := "reports:daily:" + day

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		report := dailyReport{Day: day}
		if raw, err := c.Get(ctx, key); err == nil {
			json.Unmarshal([]byte(raw), &report)
		}
		report.Bills++
		report.EnergyKWH += bill.EnergyKWH
		var cost float64
		fmt.Sscanf(bill.TotalCost, "%f", &cost)
		report.Revenue += cost
		if err := c.Set(ctx, key, report, 48*time.Hour); err != nil {
			logger.Warn("failed to update daily report", zap.Error(err))
		}
		return nil
	}); err != nil {
		logger.Warn("failed to subscribe", zap.String("subject", queue.SubjectBillCreated), zap.Error(err))
	}
}
