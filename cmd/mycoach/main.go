package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gaelgael5/mycoach-sub001/api"
	"github.com/gaelgael5/mycoach-sub001/config"
	"github.com/gaelgael5/mycoach-sub001/health"
	"github.com/gaelgael5/mycoach-sub001/logger"
	"github.com/gaelgael5/mycoach-sub001/mgorm"
	"github.com/gaelgael5/mycoach-sub001/oauthconn"
	"github.com/gaelgael5/mycoach-sub001/otp"
	"github.com/gaelgael5/mycoach-sub001/privacy"
	"github.com/gaelgael5/mycoach-sub001/session"
	"github.com/gaelgael5/mycoach-sub001/sms"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("starting MyCoach backend",
		zap.Int("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
	)

	keys, err := cfg.EncryptionKeys()
	if err != nil {
		logger.Log.Fatal("failed to load encryption keys", zap.Error(err))
	}
	cipher, err := privacy.NewCipher(keys)
	if err != nil {
		logger.Log.Fatal("failed to initialize field encryption", zap.Error(err))
	}

	storage, err := mgorm.NewStorage(cfg.DBType, cfg.DSN, cipher, &mgorm.Options{
		SkipAutoMigrate: cfg.SkipAutoMigrate,
	})
	if err != nil {
		logger.Log.Fatal("failed to initialize storage", zap.Error(err))
	}
	repo := storage.(*mgorm.Repository)

	var sender sms.Sender
	if cfg.SMSEndpoint != "" {
		sender = sms.NewHTTPSender(cfg.SMSEndpoint, cfg.SMSAPIKey, cfg.SMSFrom)
	} else {
		logger.Log.Warn("no SMS endpoint configured, using memory sender")
		sender = sms.NewMemorySender()
	}

	otpConfig := otp.Config{AppHash: cfg.SMSAppHash}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		otpConfig.Limiter = otp.NewRedisRateLimiter(redisClient, "")
	}

	verification := otp.NewManager(storage, storage, sender, storage, otpConfig)
	sessions := session.NewManager(session.NewHS256Strategy(cfg.SessionSecret, 24*time.Hour))

	providers := map[string]oauthconn.Provider{}
	if cfg.StravaClientID != "" {
		providers["strava"] = oauthconn.Provider{
			Name:         "strava",
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			AuthURL:      "https://www.strava.com/oauth/authorize",
			TokenURL:     "https://www.strava.com/oauth/token",
			RedirectURL:  cfg.StravaRedirectURL,
			Scopes:       []string{"read", "activity:read"},
		}
	}
	oauth := oauthconn.NewManager(providers, storage, storage)

	healthManager := health.NewManager("1.0.0")
	sqlDB, err := repo.DB().DB()
	if err == nil {
		healthManager.Register(health.NewDatabaseChecker(cfg.DBType, sqlDB.PingContext))
	}
	if redisClient != nil {
		healthManager.Register(health.NewRedisChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	h := api.NewHandler(storage, verification, sessions, oauth)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", echo.WrapHandler(healthManager.LiveHandler()))
	e.GET("/ready", echo.WrapHandler(healthManager.ReadyHandler()))
	e.GET("/health", echo.WrapHandler(healthManager.FullHandler()))

	g := e.Group("/api/v1")
	h.RegisterRoutes(g)

	logger.Log.Info("server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
