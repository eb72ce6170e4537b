// Package app is the single wiring point of the storefront: it opens the
// configured storage backend and builds the client, cart, session and
// checkout on top of it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/apiclient"
	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/checkout"
	"github.com/xenking/kart-storefront/internal/gateway"
	"github.com/xenking/kart-storefront/internal/receipt"
	"github.com/xenking/kart-storefront/internal/session"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/internal/storage/billyfs"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	"github.com/xenking/kart-storefront/internal/storage/redis"
	"github.com/xenking/kart-storefront/internal/tokenstore"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Storefront holds the wired components.
type Storefront struct {
	Config   *Config
	Store    storage.Store
	Tokens   *tokenstore.Store
	Client   *apiclient.Client
	Cart     *cart.Store
	Session  *session.Manager
	Checkout *checkout.Service
	Receipts receipt.Log

	// pinger is the storage backend when it can be pinged.
	pinger health.Pinger
	close  func()
}

// backend is an opened storage backend.
type backend struct {
	store    storage.Store
	receipts receipt.Log
	pinger   health.Pinger
	close    func()
}

func openBackend(ctx context.Context, cfg StorageConfig) (*backend, error) {
	b := &backend{close: func() {}}
	switch cfg.Backend {
	case BackendMemory:
		b.store = billyfs.NewMemory()
	case BackendFile:
		s, err := billyfs.NewDir(cfg.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "open file storage")
		}
		b.store = s
	case BackendRedis:
		s, err := redis.Dial(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open redis storage")
		}
		b.store, b.pinger = s, s
		b.close = func() { _ = s.Close() }
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		s := postgres.NewStore(pool)
		b.store, b.pinger = s, s
		b.receipts = postgres.NewReceiptLog(pool, cfg.Namespace, cfg.ReceiptLimit)
		b.close = pool.Close
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}

	b.store = storage.Namespaced(b.store, cfg.Namespace)
	if b.receipts == nil {
		b.receipts = receipt.NewKVLog(b.store, cfg.ReceiptLimit)
	}
	return b, nil
}

// New builds the storefront. The session is left Unresolved; call
// Session.Bootstrap once the caller is ready to block on the API.
func New(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storefront, error) {
	b, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	lg.Debug("Storage opened",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("namespace", cfg.Storage.Namespace),
	)

	tokens := tokenstore.New(b.store)
	client, err := apiclient.New(cfg.API.BaseURL, apiclient.Options{
		Timeout: cfg.API.Timeout,
		Tokens:  tokens,
	})
	if err != nil {
		b.close()
		return nil, errors.Wrap(err, "create api client")
	}

	c := cart.New(ctx, b.store, cart.WithLogger(lg.Named("cart")))
	sess := session.NewManager(tokens, client, lg.Named("session"))
	svc := checkout.NewService(c, client, sess, client, b.receipts, checkout.Options{
		RevalidatePrices: cfg.Checkout.RevalidatePrices,
		Logger:           lg.Named("checkout"),
	})

	return &Storefront{
		Config:   cfg,
		Store:    b.store,
		Tokens:   tokens,
		Client:   client,
		Cart:     c,
		Session:  sess,
		Checkout: svc,
		Receipts: b.receipts,
		pinger:   b.pinger,
		close:    b.close,
	}, nil
}

// Close releases the storage backend.
func (s *Storefront) Close() {
	s.close()
}

// Telemetry is what the gateway needs from app.Telemetry.
type Telemetry = httpmiddleware.Telemetry

// RunGateway serves the gateway until ctx is done, then drains and shuts
// down.
func RunGateway(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Gateway.Addr))

	sf, err := New(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer sf.Close()

	if err := sf.Session.Bootstrap(ctx); err != nil {
		lg.Warn("Session bootstrap", zap.Error(err))
	}

	healthSvc := health.New()
	healthSvc.Add(health.Check{
		Name:    "goroutines",
		Kind:    health.Liveness,
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})
	healthSvc.Add(health.Check{
		Name:    "shop-api",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.HTTPCheck(nil, cfg.API.BaseURL+"/api/products/"),
	})
	if sf.pinger != nil {
		healthSvc.Add(health.Check{
			Name:    cfg.Storage.Backend,
			Kind:    health.Readiness,
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(sf.pinger),
		})
	}
	healthSvc.Start(ctx, cfg.Gateway.HealthInterval)
	healthSvc.SetReady(true)

	api := gateway.New(gateway.Deps{
		Catalog:  sf.Client,
		Creator:  sf.Client,
		Cart:     sf.Cart,
		Session:  sf.Session,
		Checkout: sf.Checkout,
		Receipts: sf.Receipts,
		Logger:   lg.Named("gateway"),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	api.Register(mux)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.API.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Gateway.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.Gateway.CORS.Origins,
				AllowHeaders: []string{"Content-Type", httpmiddleware.HeaderRequestID},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.Gateway.RateLimit.Max,
				Window: cfg.Gateway.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("shop-gateway", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Gateway.Graceful.ReadinessDelay))
		time.Sleep(cfg.Gateway.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Gateway.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Gateway.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
