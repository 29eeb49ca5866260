package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"google.golang.org/grpc"

	"ecportal.org/internal/audit"
	"ecportal.org/internal/auth"
	"ecportal.org/internal/clientip"
	"ecportal.org/internal/config"
	"ecportal.org/internal/httpapi"
	"ecportal.org/internal/obs"
	"ecportal.org/internal/ratelimit"
	"ecportal.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const readinessInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		obs.Logger().Fatal().Err(err).Msg("api")
	}
}

// run returns instead of exiting so deferred closes always execute.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obs.InitLogger(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Users, audit entries and revoked sessions live in PostgreSQL when a DSN is set.
	var (
		db          *sql.DB
		users       auth.UserStore       = auth.NewMemoryUserStore()
		auditStore  audit.Store          = audit.NewMemoryStore()
		revocations auth.RevocationStore = auth.NewMemoryRevocationStore()
	)
	if cfg.Database.DSN != "" {
		store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		db = store.DB()
		users = store.Users()
		auditStore = store.Audit()
		revocations = store.Sessions()
	} else {
		log.Warn().Msg("database.dsn not set; accounts and audit entries are kept in memory")
	}

	var (
		rlStore     ratelimit.Store
		redisClient redis.UniversalClient
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		client, err := ratelimit.DialRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisClient = client
		rlStore = ratelimit.NewRedisStore(client, "ecp:rl:")
	default:
		mem := ratelimit.NewMemoryStore(cfg.RateLimit.SweepInterval)
		defer mem.Close()
		rlStore = mem
	}
	limiter, err := ratelimit.NewLimiter(rlStore, "api", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	loginLimiter, err := ratelimit.NewLimiter(rlStore, "login", cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
	if err != nil {
		return fmt.Errorf("login rate limiter: %w", err)
	}
	clientIP, err := clientip.NewResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	codec, err := auth.NewSessionCodec(cfg.Session.Secret,
		auth.WithIssuer(cfg.Session.Issuer),
		auth.WithSessionTTL(cfg.Session.TTL),
	)
	if err != nil {
		return fmt.Errorf("session codec: %w", err)
	}
	resolver, err := auth.NewResolver(codec,
		auth.WithUserLookup(users),
		auth.WithRevocations(revocations),
		auth.WithCookieName(cfg.Session.CookieName),
	)
	if err != nil {
		return fmt.Errorf("session resolver: %w", err)
	}
	accounts, err := auth.NewService(users)
	if err != nil {
		return fmt.Errorf("account service: %w", err)
	}
	auditLog, err := audit.NewLogger(auditStore, audit.WithFailureLogInterval(cfg.Audit.FailureLogInterval))
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	defer auditLog.Wait()

	api, err := httpapi.New(httpapi.Options{
		Version:      version,
		Accounts:     accounts,
		Resolver:     resolver,
		Audit:        auditLog,
		Limiter:      limiter,
		LoginLimiter: loginLimiter,
		ClientIP:     clientIP,
		Ready:        httpapi.ReadyCheck{DB: db, Redis: redisClient},
		SecureCookie: cfg.Session.SecureCookie || cfg.Production(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("build api: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	api.Health().Register(grpcServer)
	go api.Health().Run(ctx, readinessInterval)

	var grpcLis net.Listener
	if cfg.GRPC.Addr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen on %s: %w", cfg.GRPC.Addr, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http listen: %w", err)
		}
	}()
	if grpcLis != nil {
		go func() {
			log.Info().Str("addr", cfg.GRPC.Addr).Msg("grpc listening")
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serveErr:
	}
	api.Health().Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	if err == nil {
		log.Info().Msg("stopped")
	}
	return err
}
