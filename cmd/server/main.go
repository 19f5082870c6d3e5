package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	documentapp "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/document"
	identityapp "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/identity"
	paymentapp "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	recordsapp "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/records"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/auth"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/logger"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/metrics"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/notify"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/persistence"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/printing"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/remote"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/storage"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/handler"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/middleware"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/router"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting travel agency agent",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	// Local cache
	slot, redisClient, closeSlot, err := openSlot(cfg, log)
	if err != nil {
		log.Fatal("Failed to open snapshot slot", zap.Error(err))
	}
	defer closeSlot()
	if cfg.Snapshot.MaxBytes > 0 {
		slot = localstore.NewLimitedSlot(slot, cfg.Snapshot.MaxBytes)
	}

	storeOpts := []localstore.Option{
		localstore.WithLogger(logger.Component(log, "localstore")),
		localstore.WithCodec(localstore.Codec{Compression: localstore.Compression(cfg.Snapshot.Compression)}),
		localstore.WithCompactor(localstore.NewCompactor(localstore.DefaultTiers()...)),
		localstore.WithTenant(cfg.Tenant.Default),
	}
	if m != nil {
		storeOpts = append(storeOpts, localstore.WithPersistHook(m.ObservePersist))
	}
	store := localstore.New(slot, storeOpts...)
	if err := store.Load(ctx); err != nil {
		log.Fatal("Failed to load local cache", zap.Error(err))
	}
	log.Info("Local cache loaded", zap.String("tenant", store.ActiveTenant()))

	// Remote service
	tokens := remote.NewTokenSource(cfg.Remote.BaseURL, remote.Credentials{
		ClientID:     cfg.Remote.ClientID,
		ClientSecret: cfg.Remote.ClientSecret,
		TenantID:     store.ActiveTenant(),
	},
		remote.WithLeeway(cfg.Remote.TokenLeeway),
		remote.WithTokenLogger(logger.Component(log, "remote-token")),
	)
	client, err := remote.NewClientFromConfig(cfg.Remote, tokens, logger.Component(log, "remote"))
	if err != nil {
		log.Fatal("Failed to create remote client", zap.Error(err))
	}
	refresher := remote.NewRefresher(tokens, cfg.Remote.RefreshInterval, logger.Component(log, "remote-token"))

	// Notifications and reconciliation
	hub := notify.NewHub(
		notify.WithHubLogger(logger.Component(log, "notify")),
		notify.WithCheckOrigin(originChecker(cfg.HTTP.CORSAllowOrigins)),
	)
	syncOpts := []reconcile.Option{
		reconcile.WithNotifier(notify.Multi{hub, notify.NewLogNotifier(logger.Component(log, "notify"))}),
		reconcile.WithOptions(reconcile.Options{
			NotifyPullErrors:      cfg.Sync.NotifyPullErrors,
			RollbackOnPushFailure: cfg.Sync.RollbackOnPushFailure,
			Seed:                  reconcile.SeedPolicy(cfg.Sync.PaymentPlanSeed),
			PageSize:              cfg.Remote.PageSize,
		}),
	}
	if m != nil {
		syncOpts = append(syncOpts, reconcile.WithMetrics(m))
	}
	manager := reconcile.NewManager(store, client, logger.Component(log, "reconcile"), syncOpts...)

	// Sessions
	var revoked auth.RevocationList = auth.NewMemoryRevocationList()
	if redisClient != nil {
		revoked = auth.NewRedisRevocationList(redisClient)
	}
	sessions := identityapp.NewService(store, auth.NewJWTService(cfg.JWT), revoked, refresher,
		identityapp.ConfigFrom(cfg.Auth), logger.Component(log, "identity"))
	if _, err := sessions.EnsureAdmin(ctx); err != nil {
		log.Error("Failed to create admin operator", zap.Error(err))
	}
	manager.OnTenantSwitch(func(tenantID string) {
		tokens.SetTenant(tenantID)
		if _, err := sessions.EnsureAdmin(context.Background()); err != nil {
			log.Error("Failed to create admin operator", zap.String("tenant", tenantID), zap.Error(err))
		}
	})

	records := recordsapp.NewService(store, manager, logger.Component(log, "records"))
	plans := paymentapp.NewService(store, manager.MustFor(shared.CollectionPaymentPlans), logger.Component(log, "payment"))

	// Documents
	documents, browser, err := newDocumentService(ctx, cfg, store, m, log)
	if err != nil {
		log.Fatal("Failed to set up document generation", zap.Error(err))
	}
	defer func() {
		if browser != nil {
			_ = browser.Close()
		}
	}()
	if cfg.Storage.Retention > 0 {
		go runRetention(ctx, documents, cfg.Storage.Retention, log)
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(cfg.App.Name),
		middleware.SpanAttributes(),
	)
	var metricsHandler http.Handler
	if m != nil {
		engine.Use(middleware.Metrics(m))
		metricsHandler = m.Handler()
	}
	engine.Use(
		middleware.CORS(cfg.HTTP.CORSAllowOrigins),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	loginLimiter := middleware.NewRateLimiter(cfg.HTTP.LoginRateLimit, time.Minute)
	go loginLimiter.Run(ctx)

	checks := map[string]handler.ReadinessCheck{
		"snapshot": func(ctx context.Context) error {
			_, err := slot.Load(ctx)
			return err
		},
	}
	routes := router.Agent(engine, router.Handlers{
		Session:       handler.NewSessionHandler(sessions),
		Tenant:        handler.NewTenantHandler(store, manager),
		Records:       handler.NewRecordHandler(records),
		PaymentPlans:  handler.NewPaymentPlanHandler(plans),
		Documents:     handler.NewDocumentHandler(documents),
		Sync:          handler.NewSyncHandler(manager),
		Notifications: handler.NewNotificationHandler(hub, store),
		System:        handler.NewSystemHandler(cfg.App.Name, version, store, checks),
		Metrics:       metricsHandler,
		MetricsPath:   cfg.Metrics.Path,
	}, router.Security{
		Authenticator: sessions,
		Tenants:       store,
		LoginLimiter:  loginLimiter,
		Logger:        logger.Component(log, "auth"),
	})
	log.Debug("Routes registered", zap.Strings("routes", routes))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	refresher.Stop()
	manager.Wait()
	if err := store.Persist(shutdownCtx); err != nil {
		log.Warn("Final snapshot persist failed", zap.Error(err))
	}
	log.Info("Server exited")
}

// openSlot opens the configured snapshot backend. The returned redis client is
// nil unless the redis backend is used.
func openSlot(cfg *config.Config, log *zap.Logger) (localstore.Slot, redis.UniversalClient, func(), error) {
	switch cfg.Snapshot.Backend {
	case config.SnapshotBackendDatabase:
		db, err := persistence.NewDatabase(&cfg.Database, logger.Component(log, "gorm"))
		if err != nil {
			return nil, nil, nil, err
		}
		slot, err := localstore.NewGormSlot(db.DB, cfg.Snapshot.Key)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return slot, nil, func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}, nil
	case config.SnapshotBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return localstore.NewRedisSlot(client, cfg.Snapshot.Key), client, func() {
			_ = client.Close()
		}, nil
	case config.SnapshotBackendMemory:
		return localstore.NewMemorySlot(), nil, func() {}, nil
	default:
		return localstore.NewFileSlot(cfg.Snapshot.Path), nil, func() {}, nil
	}
}

// newDocumentService wires the template engine, the block measurer, the
// renderer and PDF storage. The browser is nil when nothing needs Chrome.
func newDocumentService(ctx context.Context, cfg *config.Config, store *localstore.Store, m *metrics.Metrics, log *zap.Logger) (*documentapp.Service, *printing.Browser, error) {
	engine, err := printing.NewTemplateEngine()
	if err != nil {
		return nil, nil, err
	}

	browser := printing.NewBrowser(&printing.ChromedpConfig{
		ExecPath:       cfg.Printing.ChromePath,
		DefaultTimeout: cfg.Printing.Timeout,
		MaxConcurrent:  cfg.Printing.MaxConcurrent,
		NoSandbox:      os.Geteuid() == 0,
		Logger:         logger.Component(log, "chromedp"),
	})

	var measurer printing.BlockMeasurer = printing.NewChromedpMeasurer(browser)
	if cfg.Printing.Measurer == "estimate" {
		measurer = printing.DefaultEstimateMeasurer()
	}

	var pdfs printing.PDFStorage
	switch cfg.Storage.Type {
	case "s3":
		s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
			storage.WithLogger(logger.Component(log, "s3")),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration))
		if err != nil {
			return nil, nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		pdfs = printing.NewObjectPDFStorage(s3, "documents", cfg.Storage.BaseURL, logger.Component(log, "storage"))
	case "memory":
		pdfs = printing.NewObjectPDFStorage(storage.NewMemoryObjectStorage(), "documents", cfg.Storage.BaseURL, logger.Component(log, "storage"))
	default:
		fs, err := printing.NewFileSystemStorage(&printing.FileSystemStorageConfig{
			BasePath: cfg.Storage.LocalPath,
			BaseURL:  cfg.Storage.BaseURL,
			Logger:   logger.Component(log, "storage"),
		})
		if err != nil {
			return nil, nil, err
		}
		pdfs = fs
	}

	opts := []documentapp.Option{
		documentapp.WithAgency(printing.Agency{
			Name:  cfg.Printing.AgencyName,
			Phone: cfg.Printing.AgencyPhone,
			Email: cfg.Printing.AgencyEmail,
		}),
		documentapp.WithLogger(logger.Component(log, "document")),
	}
	if cfg.Printing.LayoutsFile != "" {
		layouts, err := document.LoadLayoutsFile(cfg.Printing.LayoutsFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, documentapp.WithLayouts(layouts))
	}
	if m != nil {
		opts = append(opts, documentapp.WithObserver(m))
	}

	svc := documentapp.NewService(store, engine, measurer, printing.NewChromedpRenderer(browser), pdfs, opts...)
	return svc, browser, nil
}

// runRetention removes generated PDFs older than age every hour
func runRetention(ctx context.Context, docs *documentapp.Service, age time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := docs.Cleanup(ctx, age)
			if err != nil {
				log.Warn("Document retention cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("Removed expired documents", zap.Int("count", n))
			}
		}
	}
}

// originChecker accepts WebSocket handshakes from the configured CORS origins.
// Without configured origins only same-origin requests are accepted.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] || allowed[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
