package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/collab-service/internal/cache"
	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/handler"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/relay"
	"github.com/weiawesome/wes-io-live/collab-service/internal/repository"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/internal/slug"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/database"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/password"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "collab-service",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.RoomModel{}, &domain.ParticipantModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	roomRepo := repository.NewGormRoomRepository(db)
	participantRepo := repository.NewGormParticipantRepository(db)

	// Redis backs the room cache, the session registry and relay events.
	var (
		roomCache   cache.RoomCache
		sessionReg  registry.Registry
		publisher   pubsub.Publisher
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedis(&database.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		roomCache = cache.NewRedisRoomCache(redisClient, cfg.Cache.Prefix)
		reg := registry.NewRedisRegistry(redisClient, cfg.Registry.Prefix, cfg.Registry.KeyTTL, cfg.Registry.HeartbeatInterval)
		if err := reg.StartHeartbeat(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start registry heartbeat")
		}
		defer reg.StopHeartbeat()
		sessionReg = reg
		publisher = pubsub.NewRedisPublisher(redisClient)
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	} else {
		logger.Warn().Msg("REDIS_ADDRESS not set, room cache, session registry and relay events disabled")
	}

	// Initialize token manager and password hasher
	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Algorithm, cfg.JWT.Duration(), cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	hasher := password.NewHasher(cfg.Password.Cost)

	// Initialize services
	roomService := service.NewRoomService(roomRepo, slug.NewNanoIDGenerator(), roomCache, cfg.Cache.TTL, cfg.Room.MaxSlugAttempts)
	joinService := service.NewJoinService(roomService, participantRepo, hasher, tokens)

	// Initialize relay
	dialer, err := relay.NewDialer(cfg.Relay.UpstreamURL, cfg.Relay.DialTimeout, cfg.Relay.ForwardToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upstream dialer")
	}
	relays := relay.NewManager()

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	httpHandler := handler.NewHandler(roomService, joinService, sessionReg, relays, authMiddleware)
	wsHandler := handler.NewWSHandler(tokens, roomService, dialer, relays, sessionReg, publisher, relay.Config{
		WriteWait:      cfg.Relay.WriteWait,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
	}, cfg.Server.CORSAllowedOrigins)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(cors.New(corsConfig(cfg.Server.CORSAllowedOrigins)))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Register routes
	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.Database.Driver).
			Str(pkglog.FieldUpstreamURL, cfg.Relay.UpstreamURL).
			Msg("collab-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down collab-service")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := relays.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Int("active", relays.Active()).Msg("relay sessions did not drain")
	}

	logger.Info().Msg("collab-service stopped")
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID")
	c.ExposeHeaders = []string{"X-Request-ID"}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
