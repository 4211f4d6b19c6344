package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pool-gamification-system/handlers"
	"pool-gamification-system/middleware"
	"pool-gamification-system/models"
	"pool-gamification-system/realtime"
	"pool-gamification-system/services"
	"pool-gamification-system/utils"
	"pool-gamification-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — badge icons only
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL environment variable not set")
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL:", err)
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError surfaces unique-constraint hits as
	// gorm.ErrDuplicatedKey — the ledger and award paths depend on it.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.BadgeDefinition{},
		&models.UserBadge{},
		&models.BadgeStat{},
		&models.UserGamification{},
		&models.XPLedgerEntry{},
		&models.StreakWeek{},
		&models.UserStreak{},
		&models.StreakCelebration{},
		&models.LevelCelebration{},
		&models.BlockCelebration{},
		&models.Notification{},
		&models.MinerAddress{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := services.SeedBadges(db); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	// Dedicated redis connection pools per concern: the publisher, the
	// bridge's subscription and each consumer's blocking claims.
	publisherClient := redis.NewClient(redisOpts)
	bridgeClient := redis.NewClient(redisOpts)

	notificationService := services.NewNotificationService(db, publisherClient)
	xpService := services.NewXPService(db, notificationService)
	badgeService := services.NewBadgeService(db, xpService, notificationService)
	if err := badgeService.Reload(); err != nil {
		log.Fatal("failed to load badge cache:", err)
	}
	streakService := services.NewStreakService(db, badgeService, notificationService)
	celebrationService := services.NewCelebrationService(db)
	triggerEngine := services.NewTriggerEngine(db, badgeService, streakService, xpService, notificationService)

	manager := realtime.NewManager()
	bridge := realtime.NewBridge(bridgeClient, manager)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerID, _ := os.Hostname()
	if consumerID == "" {
		consumerID = "consumer-1"
	}
	streams := strings.Split(os.Getenv("EVENT_STREAMS"), ",")
	if len(streams) == 1 && streams[0] == "" {
		streams = []string{"mining:shares", "mining:blocks"}
	}

	gamificationConsumer := workers.NewStreamConsumer(
		redis.NewClient(redisOpts), "gamification", consumerID, streams, triggerEngine)
	personalBestConsumer := workers.NewStreamConsumer(
		redis.NewClient(redisOpts), "personal-bests", consumerID, streams,
		workers.NewPersonalBestDispatcher(db))

	go func() {
		defer gamificationConsumer.Close()
		if err := gamificationConsumer.Run(ctx); err != nil {
			log.Printf("❌ Gamification consumer exited: %v", err)
		}
	}()
	go func() {
		defer personalBestConsumer.Close()
		if err := personalBestConsumer.Run(ctx); err != nil {
			log.Printf("❌ Personal-best consumer exited: %v", err)
		}
	}()

	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Printf("❌ PubSub bridge exited: %v", err)
		}
	}()

	addressSyncClient := workers.NewAddressSyncClient(db)
	go workers.PollAddresses(ctx, addressSyncClient, 30*time.Second)

	streakService.StartScheduler()

	handlers.SetupGamificationRoutes(app, xpService, badgeService, streakService, notificationService, celebrationService)
	handlers.SetupRealtimeRoutes(app, manager)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Stream consumers running on %v (groups: gamification, personal-bests)", streams)
	log.Println("✅ PubSub bridge + connection manager running")
	log.Println("✅ Address mirror polling running (every 30s)")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
