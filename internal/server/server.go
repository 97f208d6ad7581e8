// Package server is the development API: login, session info, profile, refresh,
// change-password and logout, backed by SQLite.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gresst/gresst/internal/auth"
	"github.com/gresst/gresst/internal/config"
	"github.com/gresst/gresst/internal/models"
)

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	registry  *prometheus.Registry
	metrics   *httpMetrics
	version   string
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = auth.GenerateSecret()
		if err != nil {
			return nil, err
		}
		zlog.Warn().Msg("JWT_SECRET not set - using a random secret, tokens will not survive a restart")
	}
	auth.InitializeJWT(secret, cfg.Auth.AccessTokenTTL)

	// Initialize validator
	validate := validator.New()

	// Register custom validators
	validate.RegisterValidation("password_policy", func(fl validator.FieldLevel) bool {
		return auth.FirstUnmetRule(fl.Field().String()) == ""
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: validate,
		registry:  registry,
		metrics:   newHTTPMetrics(registry),
		version:   version,
	}

	if err := server.seedUser(); err != nil {
		return nil, err
	}

	// Setup router
	server.setupRouter()

	return server, nil
}

// initDatabase initializes the database connection
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8
		maxIdleConns    = 4
		connMaxLifetime = 300 // 5 minutes
		busyTimeout     = 5000
	)

	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// every connection to an in-memory database is a separate database
	if strings.Contains(cfg.Database.URL, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// seedUser creates the configured development user when it does not exist yet
func (s *Server) seedUser() error {
	seed := s.config.Seed
	if seed.Username == "" {
		return nil
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", seed.Username).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up seed user: %w", err)
	}
	if count > 0 {
		return nil
	}

	if seed.Password == "" {
		return fmt.Errorf("SEED_USER_PASSWORD is required when SEED_USER_USERNAME is set")
	}
	if rule := auth.FirstUnmetRule(seed.Password); rule != "" {
		s.logger.Warn().Str("rule", rule).Msg("Seed user password does not meet the password policy")
	}

	hash, err := auth.HashPassword(seed.Password)
	if err != nil {
		return err
	}

	first, last, _ := strings.Cut(seed.Name, " ")
	user := &models.User{
		Username:     seed.Username,
		Email:        seed.Email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Name:         seed.Name,
		AccountName:  seed.AccountName,
		Role:         seed.Role,
		IsActive:     true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("Seed user created")
	return nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	// CORS with credentials so browser clients can use the cookie session.
	// Without configured origins only same-origin callers are served.
	if len(s.config.Server.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		s.logger.Warn().Msg("CORS_ORIGINS is empty - cross-origin requests are not allowed")
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// Public auth endpoints
	s.router.POST("/api/auth/login", s.login)
	s.router.POST("/api/auth/logout", s.logout)
	s.router.POST("/api/v1/authentication/refresh", s.refresh)

	// Authenticated API routes (bearer token or access cookie)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.config.Auth.AccessCookieName, s.logger))
	{
		api.GET("/me", s.getMe)
		api.GET("/me/profile", s.getProfile)
		api.PUT("/me/profile", s.updateProfile)
		api.POST("/v1/authentication/change-password", s.changePassword)
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "gresst-dev-api",
		"version":   s.version,
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	addr := s.config.Server.ListenAddr

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		return err
	case <-sigChan:
	}
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
