package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"opsbridge/console/internal/api"
	"opsbridge/console/internal/config"
	"opsbridge/console/internal/connector"
	"opsbridge/console/internal/engine"
	"opsbridge/console/internal/ident"
	"opsbridge/console/internal/models"
	"opsbridge/console/internal/secrets"
	"opsbridge/console/internal/store"
	"opsbridge/console/internal/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("OPSBRIDGE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database connection
	dsn := cfg.Database.URL
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=opsbridge port=5432 sslmode=disable"
	}

	// Configure GORM logger to ignore "record not found" errors raised by
	// normal lookup misses while the console polls
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	engineLog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	resultStore := store.NewStore(db)
	allocator := ident.NewAllocator(resultStore)
	registry := connector.NewDefaultRegistry(secrets.EnvProvider{})

	// Initialize event hub
	hub := websocket.NewHub()
	go hub.Run()

	coordinator := engine.NewCoordinator(resultStore, registry, allocator, cfg.Engine, hub, engineLog)

	// Initialize REST API server
	apiServer := api.NewServer(resultStore, coordinator, registry, hub)

	// Start HTTP server
	httpPort := cfg.Server.Port

	log.Printf("Starting HTTP server on 0.0.0.0:%s", httpPort)
	log.Printf("REST API endpoint: http://0.0.0.0:%s/api/v1", httpPort)
	log.Printf("Execution event stream: ws://0.0.0.0:%s/ws/executions", httpPort)

	if err := http.ListenAndServe("0.0.0.0:"+httpPort, apiServer.GetRouter()); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
