package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/teamboard/api"
	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	auditPostgres "github.com/frahmantamala/teamboard/internal/audit/postgres"
	"github.com/frahmantamala/teamboard/internal/auth"
	"github.com/frahmantamala/teamboard/internal/authz"
	"github.com/frahmantamala/teamboard/internal/catalog"
	catalogPostgres "github.com/frahmantamala/teamboard/internal/catalog/postgres"
	"github.com/frahmantamala/teamboard/internal/core/datamodel"
	"github.com/frahmantamala/teamboard/internal/core/events"
	"github.com/frahmantamala/teamboard/internal/permcache"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/internal/role"
	rolePostgres "github.com/frahmantamala/teamboard/internal/role/postgres"
	"github.com/frahmantamala/teamboard/internal/team"
	teamPostgres "github.com/frahmantamala/teamboard/internal/team/postgres"
	"github.com/frahmantamala/teamboard/internal/transport"
	"github.com/frahmantamala/teamboard/internal/transport/middleware"
	"github.com/frahmantamala/teamboard/internal/transport/rest"
	"github.com/frahmantamala/teamboard/pkg/metrics"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// App is the fully wired service graph shared by the server and the one-shot commands.
type App struct {
	Config  *internal.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	GormDB *gorm.DB
	DB     *sqlx.DB
	Redis  redis.UniversalClient

	Catalog     *catalog.Service
	Roles       *role.Service
	Teams       *team.Service
	AuditLog    *auditPostgres.AuditRepository
	AuditWriter *audit.AsyncWriter
	Cache       *permcache.CachedSource
	Broadcaster *permcache.Broadcaster
	Bus         *events.EventBus
	Checker     *resolver.Checker
	Authz       *authz.Service
}

// NewApp opens the database and cache backends and wires every service. Close
// releases them in reverse order.
func NewApp(cfg *internal.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if cfg.Observability.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	gdb, sdb, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.GormDB, a.DB = gdb, sdb

	if cfg.Cache.Backend == permcache.BackendRedis || cfg.Cache.Broadcast {
		a.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Cache.Redis.Addr},
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}

	store, err := a.newStore()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize permission cache: %w", err)
	}

	permRepo := catalogPostgres.NewPermissionRepository(gdb)
	a.Catalog = catalog.NewService(permRepo, logger)
	a.Roles = role.NewService(rolePostgres.NewRoleRepository(gdb), permRepo, logger)
	a.Teams = team.NewService(teamPostgres.NewMembershipRepository(gdb), logger)
	a.AuditLog = auditPostgres.NewAuditRepository(gdb, sdb).
		WithSnapshotReads(cfg.Database.Driver == "sqlite")

	a.AuditWriter = audit.NewAsyncWriter(a.AuditLog, audit.WriterConfig{
		MaxWorkers: cfg.Audit.Workers,
		QueueSize:  cfg.Audit.QueueSize,
	}, logger, a.Metrics)

	res := resolver.NewResolver(a.Teams, a.Roles, logger, a.Metrics)
	a.Cache = permcache.NewCachedSource(res, store, cfg.Cache.TTL, logger, a.Metrics)
	a.Bus = events.NewEventBus(logger)

	if cfg.Cache.Broadcast && a.Redis != nil {
		a.Broadcaster = permcache.NewBroadcaster(a.Redis, cfg.Cache.Redis.Channel, a.Cache, logger)
		a.Broadcaster.Register(a.Bus)
	}

	a.Checker = resolver.NewChecker(a.Cache, a.AuditLog, logger,
		resolver.WithAsyncWriter(a.AuditWriter),
		resolver.WithTimeout(cfg.Authz.CheckTimeout),
		resolver.WithGrantedLogging(cfg.Authz.LogGrantedChecks),
		resolver.WithMetrics(a.Metrics),
	)

	a.Authz = authz.NewService(authz.Deps{
		Catalog: a.Catalog,
		Roles:   a.Roles,
		Teams:   a.Teams,
		Source:  a.Cache,
		Checker: a.Checker,
		Cache:   a.Cache,
		Audit:   a.AuditLog,
		Bus:     a.Bus,
		Logger:  logger,
	})

	return a, nil
}

func (a *App) newStore() (permcache.Store, error) {
	if a.Config.Cache.Backend == permcache.BackendRedis {
		return permcache.NewRedisStore(a.Redis, a.Config.Cache.Redis.Namespace), nil
	}
	return permcache.NewMemoryStore(a.Config.Cache.MaxEntries)
}

// Router builds the HTTP handler tree.
func (a *App) Router() (*chi.Mux, error) {
	base := transport.NewBaseHandler(a.Logger)

	var validator *middleware.RequestValidator
	if a.Config.Server.ValidateRequests {
		v, err := middleware.NewRequestValidator(api.OpenAPI, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load openapi document: %w", err)
		}
		validator = v
	}

	metricsPath := ""
	if a.Metrics != nil {
		metricsPath = a.Config.Observability.Metrics.Path
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.RouterDeps{
		Health:      rest.NewHealthHandler(a.DB, a.Redis),
		Auth:        auth.NewHandler(base, auth.NewTokenValidator(a.Config.Security)),
		Authz:       authz.NewHandler(base, a.Authz, a.Config.Audit.DefaultQueryLimit),
		Checker:     a.Checker,
		Validator:   validator,
		Metrics:     a.Metrics,
		MetricsPath: metricsPath,
		OpenAPI:     api.OpenAPI,
		Logger:      a.Logger,
	})
	return router, nil
}

// Close drains the audit writer and the event bus before closing the backends.
func (a *App) Close() error {
	if a.AuditWriter != nil {
		a.AuditWriter.Shutdown()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}

	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Ping verifies the backends are reachable.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
	}
	return nil
}

// openDatabase returns a gorm handle for the repositories and an sqlx handle over the
// same pool for the audit cursor and health check.
func openDatabase(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	switch cfg.Driver {
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(cfg.Source), gormConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		// one connection keeps an in-memory database alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
		if err := datamodel.AutoMigrate(gdb); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
		return gdb, sqlx.NewDb(sqlDB, "sqlite3"), nil

	default:
		const driver = "pgx"

		dbConn, err := sqlx.Connect(driver, cfg.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
		}
		dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
		dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		if err := dbConn.Ping(); err != nil {
			_ = dbConn.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}

		gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), gormConfig)
		if err != nil {
			_ = dbConn.Close()
			return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
		}
		return gdb, dbConn, nil
	}
}
