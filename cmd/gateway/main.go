package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/webstack-labs/auth_gateway/internal/config"
	"github.com/webstack-labs/auth_gateway/internal/gateway"
	"github.com/webstack-labs/auth_gateway/internal/httpapi"
	"github.com/webstack-labs/auth_gateway/internal/logging"
	"github.com/webstack-labs/auth_gateway/internal/securitylog"
	"github.com/webstack-labs/auth_gateway/internal/storage"
	"github.com/webstack-labs/auth_gateway/internal/storage/postgres"
	redisstore "github.com/webstack-labs/auth_gateway/internal/storage/redis"
)

func main() {
	configPath := flag.String("config", "", "path to gateway.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New("auth-gateway", cfg.IsProduction())

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("gateway exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. The backend split is decided here, once; handlers never branch
	// on it.
	var (
		accounts storage.AccountStore
		sessions storage.SessionStore
		events   securitylog.Store
	)
	switch cfg.Store.Backend {
	case "postgres":
		if err := postgres.Migrate("file://migrations", cfg.Store.PostgresDSN); err != nil {
			return err
		}
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		accounts, sessions, events = store, store, store
	default:
		accounts = storage.NewMemory()
		sessions = storage.NewMemorySessions()
		events = securitylog.NewMemoryStore()
		logger.Warn("using in-memory stores; state resets on restart")
	}

	// Attempt limiter.
	var limiter gateway.AttemptLimiter
	var memLimiter *gateway.SlidingWindowLimiter
	switch cfg.RateLimit.Backend {
	case "redis":
		client, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = redisstore.NewLimiter(client, cfg.RateLimit.Window, cfg.RateLimit.MaxAttempts)
	default:
		memLimiter = gateway.NewSlidingWindowLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxAttempts, nil)
		limiter = memLimiter
	}

	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		// Development convenience only; config validation rejects an empty
		// secret in production.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		secret = []byte(hex.EncodeToString(buf))
		logger.Warn("generated ephemeral session secret; tokens will not survive restart")
	}

	sessionMgr := gateway.NewSessionManager(secret, cfg.Session.TTL, cfg.Session.RefreshTTL, cfg.Session.Issuer, sessions, nil)

	recorder := securitylog.NewRecorder(events, cfg.SecurityLog.Buffer, func(entry securitylog.Entry) {
		logger.LogSecurityEvent(ctx, entry.Action, map[string]interface{}{
			"severity": string(entry.Severity),
			"account":  entry.AccountID,
			"detail":   entry.Detail,
		})
	})
	recorder.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := recorder.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("security log drain incomplete")
		}
	}()

	guard := gateway.NewOriginGuard(cfg.Origins.Allowed, cfg.IsProduction())
	policy := gateway.NewPolicy(cfg.Policy.EnforcePasswordStrength, cfg.Policy.DisposableDomains)
	service := gateway.NewService(accounts, sessionMgr, limiter, policy, guard, recorder, logger, cfg.Store.Timeout)

	// Periodic sweeps run off the request path.
	scheduler := cron.New()
	if memLimiter != nil {
		_, _ = scheduler.AddFunc("@every 10m", func() {
			if removed := memLimiter.Sweep(); removed > 0 {
				logger.WithFields(map[string]interface{}{"removed": removed}).Debug("rate window sweep")
			}
		})
	}
	_, _ = scheduler.AddFunc("@hourly", func() {
		if removed, err := sessionMgr.SweepExpired(context.Background()); err == nil && removed > 0 {
			logger.WithFields(map[string]interface{}{"removed": removed}).Debug("expired session sweep")
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	router := httpapi.NewRouter(service, events, logger, httpapi.Options{
		Production:  cfg.IsProduction(),
		GlobalRPS:   cfg.RateLimit.GlobalRPS,
		GlobalBurst: cfg.RateLimit.GlobalBurst,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":       cfg.Server.Addr,
			"env":        cfg.Environment,
			"store":      cfg.Store.Backend,
			"rate_limit": cfg.RateLimit.Backend,
		}).Info("gateway listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
