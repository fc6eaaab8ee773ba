package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/khscrm/api/internal/auth"
	"github.com/khscrm/api/internal/cache"
	"github.com/khscrm/api/internal/config"
	"github.com/khscrm/api/internal/database"
	"github.com/khscrm/api/internal/handler"
	"github.com/khscrm/api/internal/limiter"
	"github.com/khscrm/api/internal/middleware"
	"github.com/khscrm/api/internal/model"
	"github.com/khscrm/api/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis for rate-limit counters
	var rateLimiter *limiter.Limiter
	redisCache, err := cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		// Continue without rate limiting (fail-open)
	} else {
		rateLimiter = limiter.NewLimiter(redisCache)
	}

	// Initialize auth core
	userStore := auth.NewGormUserStore(db)
	tokenStore := auth.NewGormTokenStore(db)
	eventLog := auth.NewEventLog(db)
	authService := auth.NewService(userStore, tokenStore, eventLog, auth.Config{
		Secret: cfg.JWTSecret,
	})

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, userStore)
	dashboardHandler := handler.NewDashboardHandler(db)

	// Start the expired-token sweeper if enabled
	var tokenSweeper *scheduler.TokenSweeper
	if cfg.SweeperEnabled {
		tokenSweeper = scheduler.NewTokenSweeper(tokenStore, scheduler.SweeperConfig{
			Interval: cfg.SweepInterval,
		})
		go tokenSweeper.Start(context.Background())
		log.Println("Expired-token sweeper started")
	}

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes: login and refresh sit behind the strict auth policy
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/login", middleware.RateLimit(rateLimiter, limiter.AuthPolicy), authHandler.Login)
		authRoutes.POST("/refresh", middleware.RateLimit(rateLimiter, limiter.AuthPolicy), authHandler.Refresh)
		authRoutes.POST("/logout", middleware.AuthMiddleware(cfg.JWTSecret), authHandler.Logout)
		authRoutes.GET("/me", middleware.AuthMiddleware(cfg.JWTSecret), authHandler.Me)
	}

	// Protected API routes
	api := r.Group("/api")
	api.Use(middleware.RateLimit(rateLimiter, limiter.APIPolicy))
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		owner := api.Group("")
		owner.Use(middleware.RequireRole(model.RoleOwner))
		{
			owner.GET("/dashboard/summary", dashboardHandler.GetSummary)

			// Sweeper status
			owner.GET("/scheduler/status", func(c *gin.Context) {
				if tokenSweeper != nil {
					c.JSON(200, tokenSweeper.GetStatus())
				} else {
					c.JSON(200, gin.H{"enabled": false, "message": "Sweeper is disabled"})
				}
			})
		}
	}

	log.Printf("API server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
