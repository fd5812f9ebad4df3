package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"binary-referral-system/config"
	"binary-referral-system/handlers"
	"binary-referral-system/metrics"
	"binary-referral-system/middleware"
	"binary-referral-system/models"
	"binary-referral-system/services"
	"binary-referral-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
	}

	ledger := services.NewLedgerService(db, cfg.Currency, m)
	registration := services.NewRegistrationService(db, ledger, services.RegistrationOptions{
		Policy:                 cfg.StructurePolicy,
		JoinBonusAmount:        cfg.JoinBonusAmount,
		SelfPairBonusAmount:    cfg.SelfPairBonusAmount,
		SponsorPairBonusAmount: cfg.SponsorPairBonusAmount,
		LockTimeout:            cfg.LockTimeout,
	}, m)
	withdrawals := services.NewWithdrawalService(db, ledger, cfg.LockTimeout, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registration.EnsurePolicy(ctx); err != nil {
		log.Fatal("structure policy check failed:", err)
	}

	var treeCache services.TreeCache
	if cfg.RedisURL != "" {
		rc, err := services.NewRedisTreeCache(cfg.RedisURL, cfg.RedisPassword, cfg.TreeCacheTTL)
		if err != nil {
			log.Printf("⚠️  Tree cache disabled: %v", err)
		} else {
			defer rc.Close()
			treeCache = rc
			log.Printf("✅ Tree cache enabled (ttl %s)", cfg.TreeCacheTTL)
		}
	}
	structure := services.NewStructureService(db, cfg.TreeDefaultDepth, cfg.TreeMaxDepth, treeCache)

	reconciler := workers.NewReconcileWorker(ledger, m, cfg.ReconcileInterval)
	if err := reconciler.Start(ctx); err != nil {
		log.Fatal("failed to start reconcile worker:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	if cfg.MetricsEnabled {
		handlers.SetupMetricsRoute(app, prometheus.DefaultGatherer)
	}

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	secured := handlers.SecuredGroup(app)
	handlers.SetupReferralRoutes(app, secured, registration, structure)
	handlers.SetupWalletRoutes(app, secured, ledger, withdrawals)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Structure policy: %s", cfg.StructurePolicy)
	log.Println("✅ GatewayAuthMiddleware enforced globally: all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
