package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/promohub/promohub-api/internal/config"
	"github.com/promohub/promohub-api/internal/domain/business"
	"github.com/promohub/promohub-api/internal/domain/guardrail"
	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/payout"
	"github.com/promohub/promohub-api/internal/domain/realtime"
	"github.com/promohub/promohub-api/internal/domain/reconcile"
	"github.com/promohub/promohub-api/internal/domain/settlement"
	"github.com/promohub/promohub-api/internal/domain/spendsync"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/middleware"
	"github.com/promohub/promohub-api/internal/pkg/database"
	"github.com/promohub/promohub-api/internal/pkg/jwt"
	"github.com/promohub/promohub-api/internal/pkg/logger"
	"github.com/promohub/promohub-api/internal/pkg/metaads"
	pkgresponse "github.com/promohub/promohub-api/internal/pkg/response"
	"github.com/promohub/promohub-api/internal/pkg/storage"
	"github.com/promohub/promohub-api/internal/pkg/stripeconnect"
)

// handlers groups everything the router mounts.
type handlers struct {
	wallet     *wallet.Handler
	webhook    *wallet.WebhookHandler
	settlement *settlement.Handler
	guardrail  *guardrail.Handler
	payout     *payout.Handler
	reconcile  *reconcile.Handler
	realtime   *realtime.Handler
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, Service: "api"})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting PromoHub API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Repositories ----------
	walletRepo := wallet.NewRepository(db)
	adRepo := livead.NewRepository(db)
	businessRepo := business.NewRepository(db)
	reconcileRepo := reconcile.NewRepository(db)
	payoutRepo := payout.NewRepository(db)

	// ---------- Infrastructure ----------
	hub := realtime.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	var balanceCache wallet.BalanceCache
	if redisClient != nil {
		balanceCache = wallet.NewRedisBalanceCache(redisClient)
	}

	metaClient := metaads.NewClient(cfg.MetaGraphBaseURL, cfg.MetaGraphVersion, cfg.MetaTimeout(), cfg.MetaUserAgent)

	var transfers settlement.Transferrer
	stripeClient, err := stripeconnect.NewClient(stripeconnect.Config{
		SecretKey: cfg.StripeSecretKey,
		APIURL:    cfg.StripeAPIURL,
	})
	switch {
	case errors.Is(err, stripeconnect.ErrNotConfigured):
		log.Warn().Msg("Stripe not configured, settlements will skip transfers")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to init Stripe client")
	default:
		transfers = stripeClient
	}

	archive := newArchive(cfg)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo, balanceCache)
	recorder := reconcile.NewRecorder(reconcileRepo)
	auditor := reconcile.NewAuditor(adRepo, walletService, recorder)
	collector := spendsync.NewCollector(businessRepo, metaClient, adRepo)
	settlementService := settlement.NewService(adRepo, walletService, businessRepo, transfers, recorder, cfg.SettlementCurrency)
	guardrailService := guardrail.NewService(adRepo, collector, metaClient, walletService, settlementService, hub, archive, guardrail.Options{
		BatchSize:           cfg.GuardrailBatchSize,
		SettleOnSweep:       cfg.GuardrailSettleOnSweep,
		LowBalanceThreshold: cfg.LowBalanceThreshold,
	})
	payoutService := payout.NewService(payoutRepo, hub)

	scheduler := guardrail.NewScheduler(guardrailService, auditor, cfg.GuardrailSchedule, cfg.ReconcileSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Invalid cron schedule")
	}

	h := handlers{
		wallet:     wallet.NewHandler(walletService),
		webhook:    wallet.NewWebhookHandler(walletService, cfg.StripeWebhookSecret),
		settlement: settlement.NewHandler(settlementService),
		guardrail:  guardrail.NewHandler(guardrailService),
		payout:     payout.NewHandler(payoutService),
		reconcile:  reconcile.NewHandler(auditor, recorder),
		realtime:   realtime.NewHandler(hub, cfg.AllowedOrigins),
	}

	r := newRouter(cfg, jwtService, db, h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // sweeps run inline on the HTTP trigger
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func newArchive(cfg *config.Config) storage.ObjectStore {
	if cfg.ArchiveEnabled() {
		s3Store, err := storage.NewS3Store(context.Background(), storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init sweep archive")
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("Sweep archive: S3")
		return s3Store
	}
	if cfg.ArchiveLocalDir != "" {
		local, err := storage.NewLocalStore(cfg.ArchiveLocalDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init local sweep archive")
		}
		log.Info().Str("dir", cfg.ArchiveLocalDir).Msg("Sweep archive: local disk")
		return local
	}
	log.Warn().Msg("Sweep archive disabled")
	return nil
}

func newRouter(cfg *config.Config, jwtService *jwt.Service, db *sqlx.DB, h handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.Logger)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.RealIP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				pkgresponse.ServiceUnavailable(w, "DATABASE_UNAVAILABLE", "database unreachable")
				return
			}
		}
		pkgresponse.OK(w, map[string]string{"status": "ok"})
	})

	authMiddleware := middleware.Auth(jwtService)
	affiliateOnly := middleware.RequireAffiliate()
	affiliateAuth := func(next http.Handler) http.Handler {
		return authMiddleware(affiliateOnly(next))
	}

	// Browsers cannot set headers on a websocket handshake, so the token may come as a query param.
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		affiliateAuth(http.HandlerFunc(h.realtime.WebSocket)).ServeHTTP(w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/wallet", func(r chi.Router) {
			r.With(affiliateAuth).Get("/payouts", h.payout.List)
			r.Mount("/", h.wallet.Routes(affiliateAuth))
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.CronSecret(cfg.CronSecret))
		r.Mount("/settlements", h.settlement.Routes())
		r.Mount("/guardrail", h.guardrail.Routes())
		r.Mount("/wallet", h.wallet.InternalRoutes())
		r.Mount("/reconciliation", h.reconcile.Routes())
		r.Mount("/", h.payout.InternalRoutes())
	})

	r.Mount("/webhooks", h.webhook.Routes())

	return r
}
