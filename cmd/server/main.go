package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/api"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/auth"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/config"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/logger"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/realtime"
	internalWs "github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/websocket"
)

var log = logger.New("server")

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfg := config.MustLoad()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.InitJWTKey([]byte(cfg.JWTSecret))

	db, err := database.NewDatabase(database.PostgreSQL, cfg.DatabaseDSN)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Connected to database")

	feed, err := realtime.DialFeed(cfg.ChangeFeedURL)
	if err != nil {
		log.Error("Failed to connect to change feed: %v", err)
		os.Exit(1)
	}
	defer feed.Close()
	log.Info("Connected to change feed at %s", cfg.ChangeFeedURL)

	wsManager := internalWs.NewManager(db, feed, cfg.Chat.SendGraceWindow, cfg.Chat.RecentCacheSize)
	go wsManager.Run()

	// REST handlers push inbox signals through the same manager
	api.WSManager = wsManager

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTPServer.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	chatHandler := api.NewChatHandler(db)
	conversationHandler := api.NewConversationHandler(db)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.GET("/conversations", conversationHandler.GetConversations)
		authorized.GET("/conversations/unread-count", conversationHandler.GetUnreadCount)

		authorized.POST("/chats", chatHandler.CreateChat)
		authorized.GET("/chats/:chatID/messages", chatHandler.GetMessages)
		authorized.POST("/chats/:chatID/messages", chatHandler.SendMessage)
		authorized.POST("/chats/:chatID/read", chatHandler.MarkRead)
	}

	// WebSocket route accepts the token as a query parameter because
	// browser WebSocket clients cannot set an Authorization header.
	router.GET("/api/ws", func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			log.Warn("WebSocket token rejected for %s: %v", c.Request.RemoteAddr, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("handle", claims.Handle)
		wsManager.HandleWebSocket(c)
	})

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("Server starting on %s", cfg.HTTPServer.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
