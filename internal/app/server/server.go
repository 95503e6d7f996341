package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hrleave/internal/domain/audit"
	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
	"hrleave/internal/domain/leave/memstore"
	"hrleave/internal/domain/notifications"
	"hrleave/internal/domain/payroll"
	"hrleave/internal/domain/timemgmt"
	"hrleave/internal/platform/config"
	"hrleave/internal/platform/db"
	"hrleave/internal/platform/email"
	"hrleave/internal/platform/jobs"
	"hrleave/internal/platform/metrics"
	"hrleave/internal/platform/querier"
	"hrleave/internal/transport/http/api"
	audithandler "hrleave/internal/transport/http/handlers/audit"
	leavehandler "hrleave/internal/transport/http/handlers/leave"
	notificationshandler "hrleave/internal/transport/http/handlers/notifications"
	payrollhandler "hrleave/internal/transport/http/handlers/payroll"
	"hrleave/internal/transport/http/middleware"
)

// directory is what the engine needs from the employee registry.
type directory interface {
	leave.Directory
	leave.OrgStructure
	notifications.HRDirectory
}

type timeStore interface {
	leave.TimeSync
	payrollhandler.ExceptionLister
}

// App holds the wired dependencies. DB is nil when running on in-memory stores.
type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Leave   *leave.Service
	Metrics *metrics.Collector
}

type backends struct {
	leave       leave.StoreAPI
	directory   directory
	notify      notifications.StoreAPI
	payroll     payroll.StoreAPI
	time        timeStore
	audit       audit.Recorder
	idempotency middleware.IdempotencyStore
	jobsDB      querier.Querier
}

func memoryBackends(dir directory) backends {
	if dir == nil {
		dir = core.NewMemory()
	}
	return backends{
		leave:       memstore.New(),
		directory:   dir,
		notify:      notifications.NewMemoryStore(),
		payroll:     payroll.NewMemoryStore(),
		time:        timemgmt.NewMemoryStore(),
		audit:       audit.NewMemory(),
		idempotency: middleware.NewMemoryIdempotencyStore(),
	}
}

func postgresBackends(pool *db.Pool) backends {
	return backends{
		leave:       leave.NewStore(pool),
		directory:   core.NewStore(pool),
		notify:      notifications.NewStore(pool),
		payroll:     payroll.NewStore(pool),
		time:        timemgmt.NewStore(pool),
		audit:       audit.New(pool),
		idempotency: middleware.NewIdempotencyStore(pool),
		jobsDB:      pool,
	}
}

// New connects storage and builds the router. With an empty DATABASE_URL
// every store is kept in memory.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}
	var b backends
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory stores")
		b = memoryBackends(nil)
	} else {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			if err := db.Migrate(pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		b = postgresBackends(pool)
	}
	if err := app.wire(ctx, b, nil); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// NewWithBackends builds an app over in-memory stores and the given
// directory. Used by tests.
func NewWithBackends(ctx context.Context, cfg config.Config, dir directory, now func() time.Time) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}
	b := memoryBackends(dir)
	if err := app.wire(ctx, b, now); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, b backends, now func() time.Time) error {
	cfg := a.Config
	notifySvc := notifications.New(b.notify, email.New(cfg), cfg.EmailFrom)
	payrollLinker := payroll.NewLeaveLinker(b.payroll)

	leaveSvc := leave.NewService(b.leave, leave.Dependencies{
		Directory: b.directory,
		Org:       b.directory,
		Notifier:  notifications.NewLeaveNotifier(notifySvc, b.directory, b.directory, cfg.HRNotificationMail),
		TimeSync:  b.time,
		Payroll:   payrollLinker,
		Now:       now,
	}, leave.Settings{
		EscalationSLA:         cfg.LeaveEscalationSLA,
		TeamConflictThreshold: cfg.LeaveTeamConflictThreshold,
		EncashmentCapDays:     cfg.LeaveEncashmentCapDays,
	})
	a.Leave = leaveSvc

	if cfg.RunSeed {
		created, err := leaveSvc.EnsureDefaults(ctx, leave.DefaultCatalog())
		if err != nil {
			return fmt.Errorf("seed leave catalog: %w", err)
		}
		if created > 0 {
			slog.Info("leave catalog seeded", "types", created)
		}
	}

	a.Jobs = jobs.New(b.jobsDB)
	a.Jobs.RegisterPeriodic(leave.EscalationJob{Service: leaveSvc}, cfg.LeaveEscalationInterval)
	a.Jobs.RegisterPeriodic(leave.MonthlyAccrualJob{Service: leaveSvc}, cfg.LeaveAccrualInterval)
	a.Jobs.RegisterPeriodic(leave.YearEndJob{Service: leaveSvc}, cfg.LeaveYearEndInterval)
	a.Jobs.RegisterPeriodic(leave.PatternDetectionJob{Service: leaveSvc}, cfg.LeavePatternInterval)

	perms := auth.StaticPermissions{}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.HeaderIdempotencyKey},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", a.handleReady)
	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.Idempotency(b.idempotency))

		leavehandler.NewHandler(leaveSvc, perms, b.audit, a.Jobs).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
		payrollhandler.NewHandler(payrollLinker, b.time, perms).RegisterRoutes(r)
		audithandler.NewHandler(b.audit, perms).RegisterRoutes(r)
	})

	a.Router = router
	return nil
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func Run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("leave server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
