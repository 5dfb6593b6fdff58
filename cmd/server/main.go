// Package main runs the meeting coordination HTTP server with WebSocket signaling and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucid-meet/backend/config"
	"github.com/lucid-meet/backend/internal/ai"
	"github.com/lucid-meet/backend/internal/analysis"
	"github.com/lucid-meet/backend/internal/auth"
	"github.com/lucid-meet/backend/internal/middleware"
	"github.com/lucid-meet/backend/internal/realtime"
	"github.com/lucid-meet/backend/internal/sessions"
	"github.com/lucid-meet/backend/internal/worker"
	"github.com/lucid-meet/backend/pkg/database"
	"github.com/lucid-meet/backend/pkg/queue"
	"github.com/lucid-meet/backend/pkg/redis"
	"github.com/lucid-meet/backend/pkg/response"
	"github.com/lucid-meet/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			AudioBucket:     cfg.AWS.AudioBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Realtime signaling: registry tracks room membership, hub tracks
	// connections, relay implements the join/leave/signal protocol.
	registry := realtime.NewRegistry()
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	hub.SetMembershipFilter(registry.IsMember)
	relay := realtime.NewRelay(registry, hub, cfg.Room.JoinGrace, logger)

	// Sessions and transcript analysis
	sessionRepo := sessions.NewRepository(pool)
	analysisRepo := analysis.NewRepository(pool)
	aggregator := analysis.NewAggregator(analysisRepo, logger)

	transcriber := ai.NewTranscriber(cfg.AI)
	summarizer := ai.NewSummarizer(cfg.AI)

	lifecycle := sessions.NewLifecycle(sessionRepo, aggregator, summarizer, logger)
	relay.SetFirstJoinFunc(lifecycle.OnFirstJoin)

	sessionHandler := sessions.NewHandler(sessionRepo, registry)

	var jobQueue *queue.Queue
	if s3Client != nil {
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}
	analysisHandler := analysis.NewHandler(aggregator, lifecycle, transcriber, s3Client, jobQueue, logger)

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEUrls))
	for _, u := range cfg.WebRTC.ICEUrls {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	jwtValidate := func(token string) (userID, name string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Name, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/webrtc/config", func(c *gin.Context) {
			response.OK(c, gin.H{"iceServers": iceServers})
		})

		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.GET("/sessions/:id/participants", sessionHandler.Participants)

		api.GET("/sessions/:id/analysis", analysisHandler.GetBySession)
		api.POST("/sessions/:id/analysis/generate", analysisHandler.Generate)
		api.POST("/sessions/:id/transcribe", analysisHandler.Transcribe)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, relay, aggregator, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (queued audio chunk transcription)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && jobQueue != nil {
		processor := worker.NewTranscriptionProcessor(aggregator, transcriber, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("transcription worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
