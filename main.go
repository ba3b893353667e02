package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aravind-gm/oranew/common/auth"
	apperrors "github.com/aravind-gm/oranew/common/errors"
	"github.com/aravind-gm/oranew/common/logger"
	commonmw "github.com/aravind-gm/oranew/common/middleware"
	"github.com/aravind-gm/oranew/config"
	"github.com/aravind-gm/oranew/controllers"
	"github.com/aravind-gm/oranew/database"
	"github.com/aravind-gm/oranew/kafka"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/pkg/resilience"
	"github.com/aravind-gm/oranew/repository"
	"github.com/aravind-gm/oranew/routes"
	"github.com/aravind-gm/oranew/services"
)

const serviceName = "oranew-commerce"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Initialize("development").Fatal("Config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- AWS setup (non-fatal) ---
	var awsCfg *sdkaws.Config
	if needsAWS(cfg) {
		loaded, err := awspkg.LoadAWSConfig(ctx, awspkg.Options{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
		if err == nil {
			awsCfg = &loaded
		}
	}

	// --- Logger ---
	log := logger.Initialize(cfg.Env)
	if cfg.CloudWatchEnabled && awsCfg != nil {
		if cw, err := awspkg.NewCloudWatchLogsClient(ctx, *awsCfg, cfg.CloudWatchLogGroup, serviceName); err != nil {
			log.Warn("CloudWatch Logs unavailable, logging to stdout only", zap.Error(err))
		} else {
			log = logger.InitializeWithWriter(cfg.Env, cw)
		}
	}
	defer func() { _ = log.Sync() }()
	if needsAWS(cfg) && awsCfg == nil {
		log.Warn("Failed to load AWS config, AWS integrations disabled")
	}

	// --- Database ---
	pg, err := database.ConnectPostgres(ctx, cfg.DSN(), log, models.All()...)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	retrier := resilience.NewRetrier(resilience.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		Multiplier:      cfg.RetryMultiplier,
		MaxInterval:     cfg.RetryMaxInterval,
	}, log)
	store := repository.NewGormStore(pg.DB, retrier)

	var idem repository.IdempotencyStore = repository.NoopIdempotencyStore{}
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, idempotency keys disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			idem = repository.NewRedisIdempotencyStore(rdb)
		}
	}

	// --- Metrics ---
	httpMetrics := commonmw.NewHTTPMetrics("oranew")
	var metricsClient *awspkg.MetricsClient
	var cloudRecorder services.MetricsRecorder
	if awsCfg != nil && cfg.CloudWatchEnabled {
		metricsClient = awspkg.NewMetricsClient(*awsCfg, cfg.CloudWatchNamespace, true)
		cloudRecorder = metricsClient
	}
	business := services.NewBusinessMetrics(httpMetrics.Registry, cloudRecorder, log)

	// --- Notifications ---
	notifier, closeNotifier := buildNotifier(cfg, awsCfg, log)
	defer closeNotifier()
	dispatcher := services.NewEventDispatcher(services.NewBreakerNotifier(notifier, log), cfg.NotificationTimeout, log)

	var couponEvents awspkg.SNSPublisher
	if awsCfg != nil && cfg.CouponEventsTopicARN != "" {
		couponEvents = awspkg.NewSNSClient(*awsCfg)
	}

	var gateway services.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway = services.NewStripeGateway(cfg.StripeSecretKey)
	}

	// --- Dependency injection ---
	pricing := services.Pricing{
		GSTRate:               cfg.GSTRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatShippingFee:       cfg.FlatShippingFee,
	}
	inventoryService := services.NewInventoryService(store, cfg.ReservationTTL, business, log)
	couponService := services.NewCouponService(store, couponEvents, cfg.CouponEventsTopicARN, business, log)
	checkoutService := services.NewCheckoutService(store, inventoryService, couponService, idem, dispatcher, business, pricing, log)
	paymentService := services.NewPaymentService(store, gateway, idem, dispatcher, business, cfg.Currency, log)
	orderService := services.NewOrderService(store, inventoryService, pg, dispatcher, business, log)
	returnService := services.NewReturnService(store, inventoryService, dispatcher, business, log)
	cartService := services.NewCartService(store, log)

	// --- Background workers ---
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		services.NewLockSweeper(inventoryService, cfg.LockSweepInterval, log).Run(ctx)
	}()

	if cfg.PaymentEventsQueueURL != "" && awsCfg != nil {
		consumer := services.NewPaymentEventConsumer(awspkg.NewSQSConsumer(*awsCfg, cfg.PaymentEventsQueueURL, log), paymentService, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Start(ctx)
		}()
	}

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(commonmw.RateLimitMiddleware(commonmw.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute), routes.WebhookPrefix))
	r.Use(httpMetrics.Middleware())
	r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	r.Use(commonmw.Timeout(cfg.RequestTimeout))
	r.Use(apperrors.ErrorMiddleware())

	routes.RegisterRoutes(r, routes.Controllers{
		Checkout: controllers.NewCheckoutController(checkoutService),
		Orders:   controllers.NewOrderController(orderService, returnService),
		Payments: controllers.NewPaymentController(paymentService, controllers.WebhookConfig{
			Secret:       cfg.PaymentWebhookSecret,
			StripeSecret: cfg.StripeWebhookKey,
		}, business, log),
		Coupons:   controllers.NewCouponController(couponService),
		Returns:   controllers.NewReturnController(returnService),
		Cart:      controllers.NewCartController(cartService),
		Inventory: controllers.NewInventoryController(inventoryService),
	}, auth.NewTokenParser(cfg.JWTSecret))

	r.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pg.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED", "service": serviceName, "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(httpMetrics.Registry, promhttp.HandlerOpts{})))

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("Commerce service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	workers.Wait()
	dispatcher.Wait()

	if err := pg.Close(); err != nil {
		log.Error("Database close error", zap.Error(err))
	}
	log.Info("Commerce service stopped gracefully")
}

func needsAWS(cfg *config.Config) bool {
	return cfg.CloudWatchEnabled ||
		cfg.PaymentEventsQueueURL != "" ||
		cfg.CouponEventsTopicARN != "" ||
		cfg.OrderEventsBackend == "sns"
}

// buildNotifier picks the order event channel. The returned func releases
// whatever the channel holds open.
func buildNotifier(cfg *config.Config, awsCfg *sdkaws.Config, log *zap.Logger) (services.Notifier, func()) {
	switch cfg.OrderEventsBackend {
	case "sns":
		if awsCfg == nil || cfg.OrderEventsTopicARN == "" {
			log.Warn("SNS order events need AWS config and ORDER_EVENTS_TOPIC_ARN, notifications disabled")
			return services.NoopNotifier{}, func() {}
		}
		return services.NewSNSNotifier(awspkg.NewSNSClient(*awsCfg), cfg.OrderEventsTopicARN), func() {}
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			log.Warn("KAFKA_BROKERS not set, notifications disabled")
			return services.NoopNotifier{}, func() {}
		}
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, log)
		return services.NewKafkaNotifier(producer), func() {
			if err := producer.Close(); err != nil {
				log.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	case "http":
		return services.NewHTTPNotifier(cfg.NotificationServiceURL, cfg.NotificationTimeout), func() {}
	default:
		return services.NoopNotifier{}, func() {}
	}
}
