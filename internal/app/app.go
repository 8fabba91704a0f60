// Package app wires the order-processing core together: database pool,
// repositories, domain services, and the ops HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/order"
	"github.com/ordwell/ordercore/internal/domain/payment"
	"github.com/ordwell/ordercore/internal/domain/promotion"
	"github.com/ordwell/ordercore/internal/domain/shipping"
	"github.com/ordwell/ordercore/internal/domain/stock"
	"github.com/ordwell/ordercore/internal/events"
	"github.com/ordwell/ordercore/internal/storage/postgres"
	"github.com/ordwell/ordercore/pkg/health"
	"github.com/ordwell/ordercore/pkg/httpmiddleware"
)

// Core bundles the wired domain services. Transports embed it; the ops
// binary owns its lifecycle.
type Core struct {
	Orders     *order.Service
	Promotions *postgres.PromotionRepository
	PromoCache *promotion.ActiveSet
	Shipping   *shipping.Engine
}

// NewCore assembles the order service and its collaborators on top of the
// pool.
func NewCore(pool *pgxpool.Pool, lg *zap.Logger) *Core {
	orderRepo := postgres.NewOrderRepository(pool)
	promoRepo := postgres.NewPromotionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	shippingRepo := postgres.NewShippingMethodRepository(pool)
	stockRepo := postgres.NewStockRepository(pool)
	variantRepo := postgres.NewVariantRepository(pool)

	sink := events.NewLogSink(lg)
	promoCache := promotion.NewActiveSet(promoRepo)
	shippingEngine := shipping.NewEngine(shippingRepo, shipping.DefaultRegistry(), lg)
	stockSvc := stock.NewService(stockRepo, variantRepo, lg)

	handlers := payment.NewRegistry()
	handlers.Register(payment.NewManualHandler("manual"))

	orders := order.NewService(order.Deps{
		Orders:        orderRepo,
		Fulfillments:  orderRepo,
		Tx:            postgres.NewTxRunner(pool),
		Variants:      variantRepo,
		Promotions:    promoRepo,
		Payments:      paymentRepo,
		PayHandlers:   handlers,
		Shipping:      shippingEngine,
		Stock:         stockSvc,
		Calculator:    order.NewCalculator(promotion.NewEvaluator(promotion.DefaultRegistry()), promoCache, shippingEngine, lg),
		Machine:       order.NewStateMachine(stockSvc, sink, lg),
		PayMachine:    payment.NewStateMachine(sink, lg),
		RefundMachine: payment.NewRefundStateMachine(sink, lg),
		Merger:        order.NewMerger(order.MergeLinesStrategy{}),
		Logger:        lg,
	})

	return &Core{
		Orders:     orders,
		Promotions: promoRepo,
		PromoCache: promoCache,
		Shipping:   shippingEngine,
	}
}

// Warmup primes the read-mostly caches so the first checkout does not pay
// for the cold load.
func (c *Core) Warmup(ctx context.Context) error {
	if _, err := c.PromoCache.ActivePromotions(ctx); err != nil {
		return errors.Wrap(err, "load promotions")
	}
	return nil
}

// Run creates all dependencies, starts the ops HTTP server, and handles
// graceful shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	core := NewCore(pool, lg)
	if err := core.Warmup(ctx); err != nil {
		return errors.Wrap(err, "warm up core")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Ops mux: probes only; order operations are reached through the Core by
	// embedding transports.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"ordercore-ops",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
