// Package main runs the watch-party HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognita/watchparty/config"
	"github.com/cognita/watchparty/internal/auth"
	"github.com/cognita/watchparty/internal/chat"
	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/internal/realtime"
	"github.com/cognita/watchparty/internal/roomqueue"
	"github.com/cognita/watchparty/internal/rooms"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/internal/store/memory"
	"github.com/cognita/watchparty/internal/store/postgres"
	"github.com/cognita/watchparty/internal/video"
	"github.com/cognita/watchparty/pkg/database"
	"github.com/cognita/watchparty/pkg/redis"
	"github.com/cognita/watchparty/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, pool := openStore(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}

	var hub *realtime.Hub
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		redisPubSub := realtime.NewRedisPubSub(rdb, logger)
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		logger.Info("redis not configured; broadcasts stay on this instance")
		hub = realtime.NewHub(logger, nil, nil)
	}
	defer hub.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.Issuer)
	queue := roomqueue.New(cfg.Realtime.QueueBuffer, logger)

	historySvc := history.NewService(st, logger)
	chatSvc := chat.NewService(st.Rooms, historySvc, queue, hub, logger)
	videoSvc := video.NewService(st, historySvc, queue, hub, logger)
	roomSvc := rooms.NewService(st, logger)
	dispatcher := realtime.NewDispatcher(hub, chatSvc, videoSvc, st.Users, logger)

	roomHandler := rooms.NewHandler(roomSvc, logger)
	chatHandler := chat.NewHandler(chatSvc, logger)
	historyHandler := history.NewHandler(historySvc, cfg.Paging.MessagesPageSize, cfg.Paging.MaxPageSize, logger)
	videoHandler := video.NewHandler(videoSvc, historySvc, cfg.Paging.SessionsPageSize, cfg.Paging.MaxPageSize, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(splitOrigins(cfg.Server.CORSAllowedOrigins)))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "connections": hub.ConnCount(), "busyRooms": queue.Active()})
	})

	member := middleware.RoomMember(st.Rooms)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Chat rooms
		api.POST("/chatrooms", roomHandler.Create)
		api.GET("/chatrooms", roomHandler.List)
		api.GET("/chatrooms/:id", member, roomHandler.Get)
		api.POST("/chatrooms/:id/members", member, roomHandler.AddMember)

		// Messages
		api.GET("/chatrooms/:id/messages", member, historyHandler.ListMessages)
		api.POST("/chatrooms/:id/messages", member, chatHandler.SendMessage)
		api.POST("/chatrooms/:id/messages/:messageId/read", member, historyHandler.MarkRead)

		// Video sessions
		v := api.Group("/api/chatroom/:id/video")
		v.POST("/start", videoHandler.Start)
		v.POST("/join", videoHandler.Join)
		v.POST("/leave", videoHandler.Leave)
		v.POST("/end", videoHandler.End)
		v.GET("", member, videoHandler.Get)
		v.GET("/history", member, videoHandler.History)
		v.PATCH("/settings", videoHandler.UpdateSettings)
	}

	// WebSocket (token in Authorization header or query)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, dispatcher, realtime.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		ReadLimit:      cfg.Realtime.ReadLimit,
		PingInterval:   cfg.Realtime.PingInterval,
		PongWait:       cfg.Realtime.PongWait,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// openStore returns the configured store. The pool is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, *pgxpool.Pool) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New().Ports(), nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		logger.Fatal("migrate", zap.Error(err))
	}
	return postgres.New(pool), pool
}

func splitOrigins(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
