package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ipassist/ipassist-core/auth"
	"github.com/ipassist/ipassist-core/config"
	"github.com/ipassist/ipassist-core/handlers"
	"github.com/ipassist/ipassist-core/internal/bm25"
	"github.com/ipassist/ipassist-core/internal/cache"
	"github.com/ipassist/ipassist-core/internal/citation"
	"github.com/ipassist/ipassist-core/internal/coding"
	"github.com/ipassist/ipassist-core/internal/corpus"
	"github.com/ipassist/ipassist-core/internal/denseindex"
	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/embed"
	"github.com/ipassist/ipassist-core/internal/llm"
	"github.com/ipassist/ipassist-core/internal/logging"
	"github.com/ipassist/ipassist-core/internal/orchestrator"
	"github.com/ipassist/ipassist-core/internal/precedence"
	"github.com/ipassist/ipassist-core/internal/querynorm"
	"github.com/ipassist/ipassist-core/internal/rerank"
	"github.com/ipassist/ipassist-core/internal/retrieval"
	"github.com/ipassist/ipassist-core/internal/safety"
	"github.com/ipassist/ipassist-core/internal/session"
	"github.com/ipassist/ipassist-core/internal/storage"
	"github.com/ipassist/ipassist-core/internal/termindex"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: os.Getenv("ENVIRONMENT") != "production",
		Service: "ipassist-core",
	})

	db, err := initDB(cfg.GetDatabaseDSN())
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	store := storage.New(db)
	if err := store.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema:", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logger.Warn().Err(err).Msg("redis connection failed, falling back to in-process session/cache state")
			redisClient = nil
		} else {
			logger.Info().Msg("redis connection established")
		}
	}

	chunks, err := corpus.LoadChunks(cfg.Corpus.ChunksPath)
	if err != nil {
		log.Fatal("Failed to load chunk corpus:", err)
	}
	citationIndex, err := corpus.LoadCitationIndex(cfg.Corpus.CitationIndexPath)
	if err != nil {
		log.Fatal("Failed to load citation index:", err)
	}
	logger.Info().Int("chunks", len(chunks)).Msg("corpus loaded")

	chunkStore := corpus.BuildChunkStore(chunks)
	sparseIndex := bm25.Build(chunks)
	terms := termindex.Build(chunks)

	encoder := embed.New(embed.Config{
		BaseURL: cfg.Embedder.BaseURL,
		APIKey:  cfg.Embedder.APIKey,
		Timeout: time.Duration(cfg.Embedder.Timeout) * time.Second,
	})
	dense := denseindex.New(denseindex.Config{
		BaseURL: cfg.DenseIndex.BaseURL,
		APIKey:  cfg.DenseIndex.APIKey,
		Timeout: time.Duration(cfg.DenseIndex.Timeout) * time.Second,
	}, encoder, logger)

	var reranker rerank.Reranker
	if cfg.Reranker.Enabled {
		reranker = rerank.New(rerank.Config{
			BaseURL:   cfg.Reranker.BaseURL,
			APIKey:    cfg.Reranker.APIKey,
			BatchSize: cfg.Reranker.BatchSize,
			Timeout:   time.Duration(cfg.Reranker.Timeout) * time.Second,
		})
	}

	precedenceCfg := precedence.DefaultConfig()
	precedenceCfg.A1Floor = cfg.Precedence.A1Floor
	precedenceCfg.HalfLifeYears = map[domain.Domain]float64{
		domain.DomainCodingBilling:        cfg.Precedence.HalfLifeCodingBilling,
		domain.DomainTechnologyNavigation: cfg.Precedence.HalfLifeTechnologyNavigation,
		domain.DomainAblation:             cfg.Precedence.HalfLifeAblation,
		domain.DomainClinical:             cfg.Precedence.HalfLifeClinical,
		domain.DomainLungVolumeReduction:  cfg.Precedence.HalfLifeLungVolumeReduction,
	}

	retriever := retrieval.New(retrieval.Options{
		Dense:      dense,
		Sparse:     sparseIndex,
		Terms:      terms,
		Chunks:     chunkStore,
		Reranker:   reranker,
		Precedence: precedenceCfg,
	})

	safetyChecker := safety.New(safety.Config{
		PediatricKeywords:     cfg.Safety.PediatricKeywords,
		EmergencyPatterns:     cfg.Safety.EmergencyPatterns,
		DoseConfirmMinSources: cfg.Safety.DoseConfirmMinSources,
		DoseVariancePct:       cfg.Safety.DoseVariancePct,
	})

	llmClient := llm.New(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    time.Duration(cfg.LLM.Timeout) * time.Second,
		MaxRetries: cfg.LLM.MaxRetries,
	})

	resultCache := cache.New(redisClient, cache.Config{
		TTLSeconds: cfg.Cache.TTLSec,
		MaxItems:   cfg.Cache.Max,
	}, logger)

	sessionStore := session.New(redisClient, session.Config{
		MaxTurns:   cfg.Session.MaxTurns,
		TTLSeconds: cfg.Session.TTLSeconds,
	})

	normalizer := querynorm.New(nil)

	kb, err := coding.Load(cfg.Coding.KBFilePaths)
	if err != nil {
		log.Fatal("Failed to load coding knowledge base:", err)
	}
	codingEngine := coding.NewEngine(kb)

	orch := orchestrator.New(orchestrator.Options{
		EmergencyPatterns: cfg.Safety.EmergencyPatterns,
		Retriever:         retriever,
		Safety:            safetyChecker,
		Citations:         citationIndex,
		QueryNorm:         normalizer,
		LLM:               llmClient,
		Cache:             resultCache,
		Sessions:          sessionStore,
		Storage:           store,
		Budget: orchestrator.Budget{
			RequestMs:   cfg.Budget.RequestMs,
			EmergencyMs: cfg.Budget.EmergencyMs,
		},
		Log: logger,
	})

	queryHandlers := handlers.NewQueryHandlers(orch)
	codingHandlers := handlers.NewCodingHandlers(kb, codingEngine)
	sessionHandlers := handlers.NewSessionHandlers(sessionStore, store)
	statsHandlers := handlers.NewStatsHandlers(store)

	router := setupRouter(queryHandlers, codingHandlers, sessionHandlers, statsHandlers, cfg)

	srv := &http.Server{
		Addr:    cfg.GetServerAddress(),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", cfg.GetServerAddress()).Msg("ipassist-core server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info().Msg("server exited")
}

func initDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func setupRouter(queryHandlers *handlers.QueryHandlers, codingHandlers *handlers.CodingHandlers, sessionHandlers *handlers.SessionHandlers, statsHandlers *handlers.StatsHandlers, cfg *config.Config) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Auth.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "ipassist-core",
		})
	})

	v1 := router.Group("/api/v1")

	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.AllowedIssuers)
	v1.Use(authMiddleware(jwtValidator))

	v1.POST("/query", queryHandlers.Query)
	v1.POST("/coding", codingHandlers.Code)
	v1.GET("/coding/kb", codingHandlers.GetKB)
	v1.GET("/stats/:classification", statsHandlers.GetUsageStats)

	v1.POST("/sessions", sessionHandlers.CreateSession)
	v1.GET("/sessions", sessionHandlers.ListSessions)
	v1.GET("/sessions/:id", sessionHandlers.GetSession)
	v1.PUT("/sessions/:id", sessionHandlers.UpdateSession)
	v1.DELETE("/sessions/:id", sessionHandlers.CloseSession)
	v1.GET("/sessions/:id/history", sessionHandlers.GetHistory)
	v1.DELETE("/sessions/:id/history", sessionHandlers.ClearHistory)

	return router
}

func authMiddleware(validator *auth.JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		userID := validator.ExtractUserContext(claims)
		c.Set("user_id", userID)
		c.Set("user_email", claims.Email)

		c.Next()
	}
}
