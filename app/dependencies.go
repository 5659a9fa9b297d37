package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/handlers"
	"github.com/authgate/authgate/middleware"
	"github.com/authgate/authgate/rbac"
	"github.com/authgate/authgate/routes"
	"github.com/authgate/authgate/services/audit"
	"github.com/authgate/authgate/services/csrf"
	"github.com/authgate/authgate/services/ratelimit"
	"github.com/authgate/authgate/services/session"
	"github.com/authgate/authgate/tokens"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Dependencies wires every component of the gateway together.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Codec     *tokens.Codec
	RBAC      *rbac.Resolver
	CSRFGuard *csrf.Guard
	Limiter   *ratelimit.Limiter
	Validator *session.Validator
	Auditor   audit.Sink
	Router    http.Handler

	auditDB *audit.PostgresSink
}

// NewDependencies constructs the full dependency graph from configuration.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	codec, err := tokens.NewCodec(cfg.Auth)
	if err != nil {
		return nil, err
	}

	resolver, err := rbac.NewResolverFromFile(cfg.Roles.File, logger)
	if err != nil {
		return nil, err
	}

	guard := csrf.NewGuard(cfg.CSRF, logger)
	limiter := ratelimit.NewLimiter(cfg.RateLimit, logger)

	// The session-cookie fallback is active only when a session service is
	// configured; a nil service disables that path.
	var sessions session.SessionService
	if svc := session.NewHTTPSessionService(cfg.Session, logger); svc != nil {
		sessions = svc
	}
	validator := session.NewValidator(cfg.Session, codec, sessions, logger)

	var auditor audit.Sink = audit.NewLogSink(logger)
	var auditDB *audit.PostgresSink
	if cfg.Audit.DatabaseURL != "" {
		auditDB, err = audit.NewPostgresSink(ctx, cfg.Audit.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		auditor = audit.NewMultiSink(logger, auditor, auditDB)
	}

	gateway := middleware.NewAuthGateway(validator, resolver, auditor, cfg.Auth, cfg.Session, logger)
	csrfMW := middleware.NewCSRFMiddleware(guard, cfg.CSRF, logger)
	rateMW := middleware.NewRateLimitMiddleware(limiter, logger)

	authHandler := handlers.NewAuthHandler(
		codec, guard, validator, cfg.Auth, cfg.CSRF, cfg.Session, !cfg.IsDevelopment(), logger)

	pingers := map[string]handlers.Pinger{}
	if auditDB != nil {
		pingers["audit_db"] = auditDB
	}
	healthHandler := handlers.NewHealthHandler(Version, pingers, logger)

	router := routes.New(cfg, authHandler, healthHandler, gateway, csrfMW, rateMW, logger)

	return &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Codec:     codec,
		RBAC:      resolver,
		CSRFGuard: guard,
		Limiter:   limiter,
		Validator: validator,
		Auditor:   auditor,
		Router:    router,
		auditDB:   auditDB,
	}, nil
}

// StartWorkers launches the background reapers and returns immediately.
// The reaper goroutines stop when ctx is cancelled.
func (d *Dependencies) StartWorkers(ctx context.Context) {
	if d.Config.RateLimit.Enabled {
		go d.Limiter.StartReaper(ctx, d.Config.RateLimit.ReapInterval)
	}
	go d.Validator.StartCacheReaper(ctx, d.Config.Session.CacheReapInterval)
}

// Close releases held resources.
func (d *Dependencies) Close() error {
	if d.auditDB != nil {
		return d.auditDB.Close()
	}
	return nil
}
