package router

import (
	"net/http"

	_ "patient-access/docs"
	mem "patient-access/internal/adapters/storage/memory"
	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/domain/audit"
	"patient-access/internal/domain/encounters"
	"patient-access/internal/domain/notifications"
	"patient-access/internal/domain/patients"
	"patient-access/internal/domain/prescriptions"
	"patient-access/internal/middleware"
	"patient-access/internal/platform/logger"
	"patient-access/internal/platform/metrics"
	"patient-access/internal/ports/auth"
	"patient-access/internal/ports/directory"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev: headers X-Debug-*)

	// Stores vacío => in-memory.
	Stores Stores

	Logger  logger.Logger
	Metrics *metrics.Registry

	// Opcionales. Sin Lock se usa el lock en memoria (una sola instancia).
	Lock       accessgrants.RequestLock
	Membership directory.MembershipResolver
	Publisher  notifications.Publisher

	DefaultTimeWindowHours int
	MaxTimeWindowHours     int
}

// App expone el handler y los servicios que cmd necesita fuera de HTTP (sweeper).
type App struct {
	Handler http.Handler
	Grants  *accessgrants.Service
	Metrics *metrics.Registry
}

func NewRouter(opts Options) http.Handler {
	return New(opts).Handler
}

func New(opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	stores := opts.Stores
	if stores.Grants == nil {
		stores = MemoryStores()
	}

	// Services por módulo
	patientsSvc := patients.NewService(stores.Patients)
	auditSvc := audit.NewService(stores.Audit, log, reg)
	notifySvc := notifications.NewService(stores.Notifications, patientsSvc, opts.Publisher, log)

	grantOpts := []accessgrants.Option{
		accessgrants.WithNotifier(notifySvc),
		accessgrants.WithAuditRecorder(auditSvc),
		accessgrants.WithMetrics(reg),
		accessgrants.WithLogger(log),
		accessgrants.WithTimeWindow(opts.DefaultTimeWindowHours, opts.MaxTimeWindowHours),
	}
	if opts.Lock != nil {
		grantOpts = append(grantOpts, accessgrants.WithRequestLock(opts.Lock))
	} else {
		grantOpts = append(grantOpts, accessgrants.WithRequestLock(mem.NewRequestLock()))
	}
	if opts.Membership != nil {
		grantOpts = append(grantOpts, accessgrants.WithMembership(opts.Membership))
	}
	grantsSvc := accessgrants.NewService(stores.Grants, patientsSvc, grantOpts...)
	authz := accessgrants.NewAuthorizer(grantsSvc)
	auditSvc.SetAuthorizer(authz)

	encountersSvc := encounters.NewService(stores.Encounters, authz)
	prescriptionsSvc := prescriptions.NewService(stores.Prescriptions, encountersSvc, authz)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recover(log))
	r.Use(reg.Middleware(routePattern))
	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", reg.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Rutas por módulo
	accessgrants.RegisterRoutes(r, grantsSvc)
	patients.RegisterRoutes(r, patientsSvc, grantsSvc, authz)
	encounters.RegisterRoutes(r, encountersSvc)
	prescriptions.RegisterRoutes(r, prescriptionsSvc)
	audit.RegisterRoutes(r, auditSvc)
	notifications.RegisterRoutes(r, notifySvc)

	return &App{Handler: r, Grants: grantsSvc, Metrics: reg}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
