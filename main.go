package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chunkvault/chunkvault/internal/admission"
	"github.com/chunkvault/chunkvault/internal/config"
	"github.com/chunkvault/chunkvault/internal/oidc"
	"github.com/chunkvault/chunkvault/internal/server"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/internal/tokens"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// initialize logging early; LOG_LEVEL is re-read from config below
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetOutput(os.Stdout, cfg.Log.Format)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := server.OpenStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer closeStores()

	checks := map[string]server.Check{}
	if stores.Ping != nil {
		checks["store"] = stores.Ping
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var admitter admission.Admitter
	if cfg.RateLimit.Enabled {
		limits := admission.Limits{
			admission.ClassGeneric:  cfg.RateLimit.GenericPerMinute,
			admission.ClassUpload:   cfg.RateLimit.UploadPerMinute,
			admission.ClassDownload: cfg.RateLimit.DownloadPerMinute,
		}
		if cfg.RateLimit.UseRedis && rdb != nil {
			admitter = admission.NewRedisController(rdb, limits, time.Minute)
		} else {
			admitter = admission.NewController(admission.Options{
				Limits:  limits,
				MaxKeys: cfg.RateLimit.MaxKeys,
				IdleTTL: cfg.RateLimit.IdleTTL,
			})
		}
		logger.Infof("admission control enabled (%s)", admitter.Name())
	}

	var blobs storage.BlobStore
	if cfg.MinIO.Enabled() {
		mc, err := storage.NewMinIOStorage(ctx, storage.MinIOOptions{
			Endpoint:   cfg.MinIO.Endpoint,
			AccessKey:  cfg.MinIO.AccessKey,
			SecretKey:  cfg.MinIO.SecretKey,
			UseSSL:     cfg.MinIO.UseSSL,
			Bucket:     cfg.MinIO.Bucket,
			PresignTTL: cfg.MinIO.PresignTTL,
		})
		if err != nil {
			logger.Fatalf("failed to initialize MinIO: %v", err)
		}
		blobs = mc
		logger.Infof("chunk offload enabled above %d bytes (bucket %s)", cfg.Storage.OffloadThreshold, cfg.MinIO.Bucket)
	}

	toks, err := tokens.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatalf("failed to initialize token manager: %v", err)
	}

	var oidcVerifier middleware.Verifier
	if cfg.Keycloak.URL != "" {
		issuer := oidc.IssuerURL(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier for %s: %v", issuer, err)
		} else {
			oidcVerifier = ver
			logger.Infof("accepting OIDC tokens from %s", issuer)
		}
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	svc := server.NewServices(stores, server.Options{
		Blobs:            blobs,
		OffloadThreshold: cfg.Storage.OffloadThreshold,
		Tokens:           toks,
	})
	r := server.NewRouter(svc, server.RouterOptions{
		Verifier:   middleware.FirstOf(oidcVerifier, toks),
		Admitter:   admitter,
		Checks:     checks,
		RequestLog: true,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting chunkvault on %s (storage=%s)", srv.Addr, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
