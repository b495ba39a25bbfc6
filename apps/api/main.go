package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	authhandler "github.com/xreason-ai/identity-core/domains/auth/be/handler"
	authservice "github.com/xreason-ai/identity-core/domains/auth/be/service"
	"github.com/xreason-ai/identity-core/domains/auth/be/token"
	tenantshandler "github.com/xreason-ai/identity-core/domains/tenants/be/handler"
	tenantsrepo "github.com/xreason-ai/identity-core/domains/tenants/be/repo"
	tenantsservice "github.com/xreason-ai/identity-core/domains/tenants/be/service"
	usershandler "github.com/xreason-ai/identity-core/domains/users/be/handler"
	usersrepo "github.com/xreason-ai/identity-core/domains/users/be/repo"
	usersservice "github.com/xreason-ai/identity-core/domains/users/be/service"
	"github.com/xreason-ai/identity-core/platform/go/authz"
	platformlogging "github.com/xreason-ai/identity-core/platform/go/logging"
	"github.com/xreason-ai/identity-core/platform/go/metrics"
	platformmiddleware "github.com/xreason-ai/identity-core/platform/go/middleware"
	"github.com/xreason-ai/identity-core/platform/go/persistence"
	"github.com/xreason-ai/identity-core/platform/go/rbac"

	sqlassets "github.com/xreason-ai/identity-core/database"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL"` // empty runs the in-memory repositories
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	TokenSecret     string        `env:"TOKEN_SECRET,required"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"xreason-identity"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	DevUserEmail    string        `env:"DEV_USER_EMAIL"` // seeds a dev login when set
	DevUserPassword string        `env:"DEV_USER_PASSWORD"`
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "identity-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var (
		userRepo   usersrepo.Repository
		tenantRepo tenantsservice.Repository
	)
	if cfg.DatabaseURL != "" {
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			logger.Fatal("init postgres pool", zap.Error(err))
		}
		defer persistence.ClosePool(pool)

		if cfg.MigrateOnStart {
			for _, stmt := range []string{sqlassets.UsersSQL, sqlassets.TenantsSQL} {
				if _, err := pool.Exec(ctx, stmt); err != nil {
					logger.Fatal("apply schema", zap.Error(err))
				}
			}
		}

		userRepo = usersrepo.NewPostgresRepository(pool)
		tenantRepo = tenantsrepo.NewPostgresRepository(pool)
	} else {
		logger.Warn("no DATABASE_URL set, using in-memory repositories")
		userRepo = usersrepo.NewMemoryRepository()
		tenantRepo = tenantsrepo.NewMemoryRepository()
	}

	resolver := rbac.NewDefaultResolver()

	userService := usersservice.New(userRepo, resolver)
	tenantService := tenantsservice.New(tenantRepo, logger)

	tokenService := token.New(token.Config{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	})

	verifier := buildVerifier(ctx, cfg, userService, logger)

	authService := authservice.New(authservice.Config{
		Users:    userService,
		Tenants:  tenantService,
		Tokens:   tokenService,
		Verifier: verifier,
		Logger:   logger,
	})

	if err := metrics.Register(nil); err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", metrics.Handler())

	authhandler.New(authService, logger).Routes(rootRouter)

	rootRouter.Group(func(r chi.Router) {
		r.Use(authz.Middleware(authService.Validate, resolver))
		r.Use(platformmiddleware.RequestTrace)

		tenantshandler.New(tenantService, logger).Routes(r)
		usershandler.New(userService, logger).Routes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting identity api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildVerifier wires the credential check. Password verification is owned by
// an external provider in production; the static verifier only backs the
// optional dev login seeded from the environment.
func buildVerifier(ctx context.Context, cfg config, users usersservice.Service, logger *zap.Logger) authservice.CredentialVerifier {
	static := authservice.StaticVerifier{}
	if cfg.DevUserEmail != "" && cfg.DevUserPassword != "" {
		static[strings.ToLower(cfg.DevUserEmail)] = cfg.DevUserPassword

		if _, err := users.GetByEmail(ctx, cfg.DevUserEmail); errors.Is(err, usersservice.ErrNotFound) {
			if _, err := users.Create(ctx, usersservice.CreateInput{
				Email: cfg.DevUserEmail,
				Name:  "Dev User",
				Role:  rbac.RoleOwner,
			}); err != nil {
				logger.Warn("seed dev user", zap.Error(err))
			} else {
				logger.Info("seeded dev user", zap.String("email", cfg.DevUserEmail))
			}
		}
	}
	return static
}
