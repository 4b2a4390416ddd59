package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instaflow/internal/ai"
	"instaflow/internal/api"
	"instaflow/internal/automation"
	"instaflow/internal/config"
	"instaflow/internal/database"
	"instaflow/internal/instagram"
	"instaflow/internal/logger"
	"instaflow/internal/metrics"
	"instaflow/internal/ratelimit"
	"instaflow/internal/store"
	"instaflow/internal/tracking"
	"instaflow/internal/webhook"
	"instaflow/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Environment, cfg.Debug)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	st := store.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	go hub.Run(ctx)

	queue := tracking.NewQueue(st, cfg.TrackingQueueSize, hub)
	queue.Start(cfg.TrackingWorkers)

	igClient := instagram.NewClient(cfg)

	// The primary provider is always wired: owners may bring their own key.
	primary := ai.WithBreaker(ai.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel))
	var fallback ai.Provider
	if cfg.AnthropicKey != "" {
		fallback = ai.WithBreaker(ai.NewAnthropic(cfg.AnthropicKey, cfg.AnthropicModel))
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set, SmartAI runs without a fallback provider")
	}

	var limiter ratelimit.Limiter
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.SmartAIRateLimit, cfg.SmartAIRateWindow)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis SmartAI rate limiter")
	} else {
		limiter = ratelimit.NewLocalLimiter(cfg.SmartAIRateLimit, cfg.SmartAIRateWindow)
	}

	engine := automation.NewEngine(automation.Deps{
		Store:         st,
		Messenger:     igClient,
		Primary:       primary,
		Fallback:      fallback,
		Limiter:       limiter,
		Tracker:       queue,
		Notifier:      hub,
		Cache:         cache.New(5*time.Minute, 10*time.Minute),
		BranchMode:    cfg.BranchMode,
		HistoryWindow: cfg.ChatHistoryWindow,
	})

	webhookHandler := webhook.NewHandler(cfg, engine)
	automationHandler := api.NewAutomationHandler(st)
	dashboardHandler := api.NewDashboardHandler(st, igClient)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleEvent)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", gin.WrapF(hub.ServeWs))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Dashboard API Routes
	apiGroup := r.Group("/api")
	automationHandler.Register(apiGroup)
	dashboardHandler.Register(apiGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	webhookHandler.Wait()
	queue.Close()

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("Server stopped")
}
