package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pizza-kart/internal/domain/loyalty"
	"github.com/xenking/pizza-kart/internal/domain/order"
	"github.com/xenking/pizza-kart/internal/domain/variation"
	"github.com/xenking/pizza-kart/internal/handler"
	"github.com/xenking/pizza-kart/internal/storage/mongo"
	"github.com/xenking/pizza-kart/internal/storage/postgres"
	redisstore "github.com/xenking/pizza-kart/internal/storage/redis"
	"github.com/xenking/pizza-kart/pkg/health"
	"github.com/xenking/pizza-kart/pkg/httpmiddleware"
)

// localBusSize bounds the in-process delivered-order queue.
const localBusSize = 256

// subscriber is an event bus the loyalty service can listen on.
type subscriber interface {
	order.Publisher
	Run(ctx context.Context, h order.DeliveredHandler) error
}

// Run creates all dependencies, starts the HTTP server and the loyalty
// subscriber, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.Bool("redis", cfg.RedisEnabled()),
	)

	// Money is rendered as JSON numbers, as the storefront expects.
	decimal.MarshalJSONWithoutQuotes = true

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations. Coupons, variations and loyalty cards
	// always live here.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.Ping(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	orderRepo, closeOrders, err := newOrderRepository(ctx, cfg, pool, healthSvc)
	if err != nil {
		return err
	}
	defer closeOrders()

	var (
		variations variation.Repository = postgres.NewVariationRepository(pool)
		bus        subscriber
	)
	if cfg.RedisEnabled() {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		variations = redisstore.NewCatalogCache(rdb, variations, cfg.Redis.CatalogTTL)
		bus = redisstore.NewEventBus(rdb, redisstore.EventBusConfig{
			Stream: cfg.Redis.Stream,
			Group:  cfg.Redis.Group,
		})
	} else {
		bus = order.NewLocalBus(localBusSize)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	orderService, err := order.NewService(orderRepo, variations, bus, order.ServiceConfig{
		Location:       loc,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	loyaltySvc := loyalty.NewService(postgres.NewLoyaltyRepository(pool), loyalty.DefaultRewardEvery)

	// HTTP handlers: health endpoints + API routes on one server.
	h := handler.NewHandler(
		handler.HandlerConfig{Location: loc},
		orderService,
		postgres.NewCouponRepository(pool),
		variations,
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "pizza-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.RateLimit(limiter, nil),
			httpmiddleware.LogRequests(),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		return errors.Wrap(bus.Run(gCtx, loyaltySvc.HandleOrderDelivered), "order events")
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// newOrderRepository picks the order store. The returned func releases it.
func newOrderRepository(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	healthSvc *health.Health,
) (order.Repository, func(), error) {
	if cfg.Store != StoreMongo {
		return postgres.NewOrderRepository(pool), func() {}, nil
	}

	client, err := mongo.Connect(ctx, cfg.Mongo.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect mongo")
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }

	repo := mongo.NewOrderRepository(client.Database(cfg.Mongo.Database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, nil, errors.Wrap(err, "ensure mongo indexes")
	}
	healthSvc.AddReadinessCheck("mongo", 5*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	return repo, closeFn, nil
}

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opts = parsed
	}
	return redis.NewClient(opts), nil
}
