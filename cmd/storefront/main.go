package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"storefront/internal/api"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/order"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/sharding"
	"storefront/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("Storefront stopped")
	}
}

// run returns instead of exiting so deferred cleanup, including the final
// cart writes, always runs.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rdb := config.NewRedisClient(cfg.RedisAddr)
	defer rdb.Close()

	kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	publisher := events.NewPublisher(kafkaWriter)
	defer publisher.Close()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	catalogClient := client.NewCatalogClient(cfg.CatalogURL, httpClient)
	orderClient := client.NewOrderClient(cfg.OrderURL, httpClient)

	ttls := session.DefaultTTLs()
	ttls.Cart = cfg.CartTTL
	ttls.Branch = cfg.BranchTTL

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	catalog := client.NewCachedCatalog(catalogClient, rdb, cfg.CatalogCacheTTL)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := catalog.Warm(ctx); err != nil {
			logger.Warn().Err(err).Msg("Catalog cache warmup failed")
		}
	}()

	deps := service.Deps{
		Catalog:   catalog,
		Checker:   catalogClient,
		Orders:    orderClient,
		Sessions:  session.NewRedisStore(rdb, ttls),
		Events:    publisher,
		Metrics:   m,
		Builder:   order.NewBuilder(cfg.PaymentMethods),
		Branches:  cfg.Branches,
		NoticeTTL: cfg.NoticeTTL,
		CacheSize: cfg.SessionCacheSize,
	}

	if len(cfg.Shards) > 0 {
		dbs, err := config.ConnectShards(cfg.Shards, 10, 3*time.Second)
		if err != nil {
			return fmt.Errorf("connect receipt shards: %w", err)
		}
		defer func() {
			for _, db := range dbs {
				db.Close()
			}
		}()

		if err := migrateReceipts(dbs); err != nil {
			return fmt.Errorf("migrate receipt tables: %w", err)
		}
		deps.Receipts = repository.NewReceiptRepository(dbs, sharding.NewShardRouter(len(dbs)))
	} else {
		logger.Warn().Msg("SHARD_COUNT is 0, receipts will not be recorded")
	}

	svc, err := service.NewStorefrontService(deps)
	if err != nil {
		return fmt.Errorf("create storefront service: %w", err)
	}
	defer svc.Close()

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(10),
				Burst:     30,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(m.Middleware())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	api.RegisterRoutes(e, api.NewStorefrontHandler(svc), []byte(cfg.JWTSecret))

	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/storefront/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "storefront",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return serve(e, ":"+cfg.Port, quit, 10*time.Second)
}

// serve runs the server until it fails or a signal arrives on quit. A listener
// error is returned; a signal shuts the server down gracefully.
func serve(e *echo.Echo, addr string, quit <-chan os.Signal, grace time.Duration) error {
	errs := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		logger.Error().Err(err).Msg("Shutting down the server")
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down server")
	}
	return nil
}

func migrateReceipts(dbs []*sql.DB) error {
	if err := migrations.AutoMigrateReceipts(3, dbs...); err != nil {
		return err
	}
	return migrations.AutoMigrateReceiptItems(3, dbs...)
}
