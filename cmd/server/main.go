package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eligibility/internal/admin"
	"eligibility/internal/match"
	matchmetrics "eligibility/internal/match/metrics"
	"eligibility/internal/member"
	membermodels "eligibility/internal/member/models"
	memberstore "eligibility/internal/member/store"
	"eligibility/internal/orgpolicy"
	opstore "eligibility/internal/orgpolicy/store"
	"eligibility/internal/platform/config"
	"eligibility/internal/platform/httpserver"
	"eligibility/internal/platform/logger"
	platformmetrics "eligibility/internal/platform/metrics"
	"eligibility/internal/platform/middleware"
	"eligibility/internal/platform/postgres"
	"eligibility/internal/platform/ratelimit"
	"eligibility/internal/platform/redis"
	"eligibility/internal/platform/token"
	"eligibility/internal/population"
	"eligibility/internal/pre"
	httptransport "eligibility/internal/transport/http"
	"eligibility/internal/verification"
	verificationmetrics "eligibility/internal/verification/metrics"
	verificationstore "eligibility/internal/verification/store"
)

const (
	tokenIssuer   = "eligibility"
	tokenAudience = "eligibility-api"

	apiRateLimit  = 300
	apiRateWindow = time.Minute
)

// jwtValidator adapts the platform token service onto the auth middleware
// contract.
type jwtValidator struct {
	svc *token.JWTService
}

func (v jwtValidator) ValidateToken(raw string) (*middleware.JWTClaims, error) {
	claims, err := v.svc.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{UserID: claims.UserID()}, nil
}

// main wires configuration, stores, and services, then runs the HTTP server
// until a shutdown signal arrives. Business rules live in the internal
// service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := &httptransport.Health{Checks: map[string]func(context.Context) error{}}

	// Member stores. Without a v1 DSN the process runs entirely in memory,
	// which is only useful for local development.
	var (
		v1Store    memberstore.Store
		v2Store    memberstore.Store
		configs    opstore.ConfigurationStore
		verStore   verificationstore.Store
		memCreator admin.MemberCreator
	)
	if cfg.V1PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.V1PostgresDSN)
		if err != nil {
			log.Error("connect to v1 postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		health.Checks["postgres"] = db.PingContext

		pgV1 := memberstore.NewV1(db)
		v1Store = pgV1
		memCreator = pgV1
		configs = opstore.NewPostgres(db)
		verStore = verificationstore.NewPostgresStore(db)

		pool, err := postgres.OpenPool(ctx, cfg.V2PostgresDSN)
		if err != nil {
			log.Error("connect to v2 postgres", "error", err)
			os.Exit(1)
		}
		if pool != nil {
			defer pool.Close()
			health.Checks["postgres_v2"] = pool.Ping
			v2Store = memberstore.NewV2(pool, db)
		} else {
			v2Store = memberstore.NewMemory(membermodels.SourceV2)
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
		memV1 := memberstore.NewMemory(membermodels.SourceV1)
		v1Store = memV1
		memCreator = memV1
		v2Store = memberstore.NewMemory(membermodels.SourceV2)
		configs = opstore.NewMemory()
		verStore = verificationstore.NewMemoryStore(memV1)
	}

	// Feature flags come from Redis when configured, static defaults
	// otherwise.
	var flags orgpolicy.FlagProvider = orgpolicy.NewStaticFlagProvider()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		health.Checks["redis"] = redisClient.Health
		flags = orgpolicy.NewRedisFlagProvider(redisClient)
	}

	var limiterStore ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		limiterStore = ratelimit.NewRedisStore(redisClient)
	}
	limiter := ratelimit.New(limiterStore, apiRateLimit, apiRateWindow, ratelimit.WithLogger(log))

	policy := orgpolicy.NewService(configs, flags, orgpolicy.WithLogger(log))
	memberRouter := member.NewRouter(v1Store, v2Store, policy, member.WithLogger(log))

	engine := match.NewEngine(memberRouter, policy, match.NewVerifierRegistry(),
		match.WithLogger(log),
		match.WithMetrics(matchmetrics.New()),
	)
	verificationSvc := verification.NewService(verStore, memberRouter, policy,
		verification.WithLogger(log),
		verification.WithMetrics(verificationmetrics.New()),
	)
	preSvc := pre.NewService(v1Store, pre.WithLogger(log))
	adminSvc := admin.NewService(memCreator, policy, !cfg.IsProduction(), admin.WithLogger(log))

	jwtService := token.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)

	handler := httptransport.NewHandler(engine, verificationSvc, preSvc, adminSvc,
		population.Unconfigured{},
		httptransport.WithLogger(log),
		httptransport.WithHTTPMetrics(platformmetrics.New()),
	)
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Validator:  jwtValidator{svc: jwtService},
		AdminToken: cfg.AdminToken,
		RateLimit:  limiter,
		Health:     health,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting eligibility server", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
