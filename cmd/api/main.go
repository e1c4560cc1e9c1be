package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/damoang/angple-billing/docs"
	"github.com/damoang/angple-billing/internal/billing"
	"github.com/damoang/angple-billing/internal/config"
	"github.com/damoang/angple-billing/internal/gateway"
	"github.com/damoang/angple-billing/internal/handler"
	"github.com/damoang/angple-billing/internal/middleware"
	"github.com/damoang/angple-billing/internal/migration"
	"github.com/damoang/angple-billing/internal/repository"
	"github.com/damoang/angple-billing/internal/routes"
	"github.com/damoang/angple-billing/internal/service"
	"github.com/damoang/angple-billing/internal/ws"
	pkgcache "github.com/damoang/angple-billing/pkg/cache"
	"github.com/damoang/angple-billing/pkg/jwt"
	pkglogger "github.com/damoang/angple-billing/pkg/logger"
	"github.com/damoang/angple-billing/pkg/queue"
	pkgredis "github.com/damoang/angple-billing/pkg/redis"
	"github.com/damoang/angple-billing/pkg/sentryx"
	pkgstorage "github.com/damoang/angple-billing/pkg/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Angple Billing API
// @version         1.0
// @description     Creator subscriptions, tips, pay-per-view and chat entitlements
//
// @host            localhost:8083
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	// 로거 초기화
	pkglogger.Init()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	// 설정 로드
	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)
	gin.SetMode(cfg.Server.Mode)

	// Sentry
	reporter, err := sentryx.Init(cfg.Sentry.DSN, cfg.Sentry.Environment)
	if err != nil {
		pkglogger.Warn("Sentry init failed: %v (continuing without error reporting)", err)
	}
	defer reporter.Flush(2 * time.Second)

	// MySQL 연결
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Redis 연결
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Warn("Failed to connect to Redis: %v (continuing without cache and locks)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}
	cacheService := pkgcache.NewService(redisClient)

	// S3 webhook archive
	var archiver service.PayloadArchiver
	if cfg.Storage.Enabled {
		s3Client, s3Err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if s3Err != nil {
			pkglogger.Warn("S3 archive init failed: %v (continuing without payload archive)", s3Err)
		} else {
			archiver = s3Client
		}
	}

	// RabbitMQ notifications
	publisher := service.NewLogPublisher()
	if cfg.RabbitMQ.Enabled {
		mq, mqErr := queue.NewRabbitMQClient(cfg.RabbitMQ.URL())
		if mqErr != nil {
			pkglogger.Warn("RabbitMQ connect failed: %v (notifications will only be logged)", mqErr)
		} else {
			defer mq.Close()
			publisher = mq
		}
	}

	// WebSocket Hub
	wsHub := ws.NewHub(redisClient)
	go wsHub.Run()
	defer wsHub.Stop()

	// JWT Manager
	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)

	// Pricing and fees
	pricer, err := billing.NewPricer(cfg.Billing.BaseCurrency, cfg.Billing.Rates)
	if err != nil {
		log.Fatalf("Invalid pricing config: %v", err)
	}
	fees, err := billing.NewFeeSchedule(cfg.Billing.Fees)
	if err != nil {
		log.Fatalf("Invalid fee config: %v", err)
	}

	if cfg.Stripe.WebhookSecret == "" {
		pkglogger.Warn("STRIPE_WEBHOOK_SECRET is empty; every webhook delivery will be rejected")
	}
	paymentGateway := gateway.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// Services
	ledgerService := service.NewLedgerService(transactionRepo, accountRepo, fees)
	checkoutService := service.NewCheckoutService(
		accountRepo,
		subscriptionRepo,
		pricer,
		sessionRepo,
		paymentGateway,
		pkgredis.NewLocker(redisClient, "billing:lock:checkout:"),
		cacheService,
		service.CheckoutConfig{
			SuccessURL:       cfg.Stripe.SuccessURL,
			CancelURL:        cfg.Stripe.CancelURL,
			ChatMonthlyPrice: cfg.Billing.ChatMonthlyPrice,
			TipMin:           cfg.Billing.TipMin,
			TipMax:           cfg.Billing.TipMax,
			LockTTL:          cfg.Billing.CheckoutLockTTL,
		},
	)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, paymentGateway, cacheService, wsHub)
	entitlementService := service.NewEntitlementService(db, accountRepo, subscriptionRepo, sessionRepo, cacheService, wsHub, service.EntitlementConfig{
		BaseCurrency:     cfg.Billing.BaseCurrency,
		ChatMonthlyPrice: cfg.Billing.ChatMonthlyPrice,
		SessionTokenCost: cfg.Billing.SessionTokenCost,
		SessionMessages:  cfg.Billing.SessionMessages,
		SessionValidity:  cfg.Billing.SessionValidity,
		CacheTTL:         cfg.Billing.EntitlementTTL,
	})
	webhookService := service.NewWebhookService(service.WebhookDeps{
		DB:        db,
		Events:    eventRepo,
		Subs:      subscriptionRepo,
		Accounts:  accountRepo,
		Sessions:  sessionRepo,
		Ledger:    ledgerService,
		Gateway:   paymentGateway,
		Publisher: publisher,
		Pusher:    wsHub,
		Cache:     cacheService,
		Archiver:  archiver,
		Reporter:  reporter,
	})

	// Scheduled reconciliation alerts
	alertJob := service.NewAlertJob(eventRepo, subscriptionRepo, reporter)
	if err := alertJob.Setup(); err != nil {
		log.Fatalf("Failed to schedule alert job: %v", err)
	}
	alertJob.Start()
	defer alertJob.Stop()

	if err := middleware.RegisterValidators(); err != nil {
		log.Fatalf("Failed to register validators: %v", err)
	}

	// Gin 라우터 생성
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS 설정
	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitAndTrim(allowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:           12 * time.Hour,
	}))

	// Middleware
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())
	if redisClient != nil && !cfg.IsDevelopment() {
		router.Use(middleware.RateLimit(redisClient, middleware.DefaultRateLimitConfig()))
	}

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}
		c.JSON(status, gin.H{
			"status":  dbStatus,
			"service": "angple-billing",
			"time":    time.Now().Unix(),
		})
	})

	// Swagger UI
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.Setup(router, routes.Handlers{
		Subscription: handler.NewSubscriptionHandler(checkoutService, subscriptionService),
		Payment:      handler.NewPaymentHandler(checkoutService),
		Entitlement:  handler.NewEntitlementHandler(entitlementService),
		Ledger:       handler.NewLedgerHandler(ledgerService),
		Webhook:      handler.NewWebhookHandler(webhookService),
		WS:           handler.NewWSHandler(wsHub, cfg.CORS.AllowOrigins),
	}, jwtManager, redisClient, cfg.Billing.CheckoutPerMinute)

	if sqlDB, err := db.DB(); err == nil {
		if err := middleware.RegisterDBStats(prometheus.DefaultRegisterer, sqlDB); err != nil {
			pkglogger.Warn("DB pool metrics not registered: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		pkglogger.Info("Billing API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	pkglogger.Info("Shutting down billing API")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		pkglogger.Error("Server shutdown failed: %v", err)
	}
}

func splitAndTrim(s, delimiter string) []string {
	var parts []string
	for _, part := range strings.Split(s, delimiter) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// initDB MySQL 연결 초기화
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("DSN 파싱 실패: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["time_zone"] = "'+00:00'"

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
