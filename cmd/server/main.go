package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/converseapp/converse/internal/config"
	"github.com/converseapp/converse/internal/handler"
	"github.com/converseapp/converse/internal/middleware"
	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/internal/repository"
	"github.com/converseapp/converse/internal/service"
	"github.com/converseapp/converse/internal/ws"
	"github.com/converseapp/converse/migrations"
	"github.com/converseapp/converse/pkg/auth"
	"github.com/converseapp/converse/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           Converse API
// @version         1.0
// @description     Real-time conversation API: direct chats, groups, assistant threads, reactions and read receipts over WebSocket with Redis Pub/Sub.

// @contact.name   API Support
// @contact.email  support@converse.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting Converse API Server [env=%s]", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		// Fallback to AutoMigrate if migration files fail
		if err := db.AutoMigrate(
			&model.User{},
			&model.Conversation{},
			&model.Participant{},
			&model.GroupSettings{},
			&model.GroupAdmin{},
			&model.Message{},
			&model.Reaction{},
			&model.ReadReceipt{},
		); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// ==================== Initialize Layers ====================
	// JWT Manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	reactRepo := repository.NewReactionRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	groupRepo := repository.NewGroupRepository(db)

	// WebSocket Hub (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb, func(userID uuid.UUID, online bool) {
		// Callback: update user online status in DB
		_ = userRepo.UpdateOnlineStatus(userID, online)
		log.Printf("👤 User %s is now %s", userID, map[bool]string{true: "ONLINE", false: "OFFLINE"}[online])
	})

	// Start Hub event loop
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// Services
	chatService := service.NewChatService(convRepo, msgRepo, reactRepo, receiptRepo, userRepo, hub)
	reactionService := service.NewReactionService(reactRepo, msgRepo, convRepo, hub)
	receiptService := service.NewReceiptService(receiptRepo, msgRepo, convRepo, hub)
	groupService := service.NewGroupService(groupRepo, convRepo, userRepo, hub)

	// MinIO Storage
	minioStorage, err := storage.NewMinIO(storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.Printf("⚠️  MinIO not available: %v (file upload disabled)", err)
	}
	if minioStorage != nil {
		log.Println("✅ Connected to MinIO")
	}

	// Handlers
	chatHandler := handler.NewChatHandler(chatService, receiptService)
	reactionHandler := handler.NewReactionHandler(reactionService)
	groupHandler := handler.NewGroupHandler(groupService)
	wsHandler := handler.NewWSHandler(hub, chatService, jwtManager)
	uploadHandler := handler.NewUploadHandler(minioStorage)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")

	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "converse-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, rdb))
		{
			// Conversations
			protected.GET("/conversations", chatHandler.GetConversations)
			protected.GET("/conversations/:id", chatHandler.GetConversation)
			protected.GET("/conversations/:id/messages", chatHandler.GetMessages)
			protected.POST("/conversations/:id/messages", chatHandler.SendMessage)

			// Direct + assistant shortcuts
			protected.POST("/conversations/direct/:peerId/messages", chatHandler.SendDirectMessage)
			protected.POST("/conversations/ai/messages", chatHandler.SendAIMessage)

			// Messages
			protected.DELETE("/messages/:id", chatHandler.DeleteMessage)
			protected.POST("/messages/:id/read", chatHandler.MarkRead)
			protected.GET("/messages/:id/reactions", reactionHandler.ListReactions)
			protected.POST("/messages/:id/reactions", reactionHandler.AddReaction)
			protected.DELETE("/messages/:id/reactions", reactionHandler.RemoveReaction)

			// Groups
			protected.POST("/groups", groupHandler.CreateGroup)
			protected.DELETE("/groups/:id", groupHandler.DeleteGroup)
			protected.POST("/groups/:id/members", groupHandler.AddMember)
			protected.DELETE("/groups/:id/members/:userId", groupHandler.RemoveMember)
			protected.POST("/groups/:id/admins/:userId", groupHandler.PromoteAdmin)
			protected.DELETE("/groups/:id/admins/:userId", groupHandler.DemoteAdmin)

			// Upload
			protected.POST("/upload", uploadHandler.UploadFile)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 Converse API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("🔌 WebSocket: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	hubCancel()
	log.Println("✅ Server exited gracefully")
}
