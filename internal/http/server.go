package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"cagnotte/internal/amqp"
	"cagnotte/internal/log"
	"cagnotte/internal/middleware/ratelimit"
	"cagnotte/internal/middleware/security"
	"cagnotte/internal/middleware/trace"
	"cagnotte/internal/session"
	appweb "cagnotte/web"
)

// ExportPublisher queues a remote spreadsheet export.
type ExportPublisher interface {
	PublishExportJob(ctx context.Context, job *amqp.ExportJob) error
}

// Deps are the collaborators of the web server.
type Deps struct {
	Sessions *session.Manager
	// Publisher enables POST /export/sheets; nil disables remote export.
	Publisher ExportPublisher
	// Ready reports whether the session backend is reachable.
	Ready  func(ctx context.Context) error
	Logger *log.Logger

	RateLimitPerMinute int
	// CookieMaxAge is the lifetime of the session cookie; zero means browser session.
	CookieMaxAge time.Duration
}

type Server struct {
	http.Server
	templates *template.Template
	sessions  *session.Manager
	publisher ExportPublisher
	ready     func(ctx context.Context) error
	logger    *log.Logger
	events    *log.StructuredLogger

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	cookieMaxAge time.Duration
	appMetrics   appMetrics
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("http server: session manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}

	events := log.NewStructuredLogger(logger)
	detector := security.NewDetector()
	s := &Server{
		templates:    t,
		sessions:     deps.Sessions,
		publisher:    deps.Publisher,
		ready:        deps.Ready,
		logger:       logger,
		events:       events,
		tracer:       trace.NewMiddleware(detector.ClientIP, events),
		detector:     detector,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		cookieMaxAge: deps.CookieMaxAge,
	}
	s.appMetrics.uptime = time.Now()

	mux := http.NewServeMux()
	staticHandler := http.StripPrefix("/static/", http.FileServer(http.FS(static)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(staticHandler))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	page := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }
	mux.Handle("GET /{$}", page(s.handleIndex))
	mux.Handle("POST /budget", page(s.handleConfigure))
	mux.Handle("POST /contributions", page(s.handleAddContribution))
	mux.Handle("DELETE /contributions/{id}", page(s.handleDeleteContribution))
	mux.Handle("POST /contributions/{id}", page(s.handleDeleteContribution))
	mux.Handle("POST /ui/phone", page(s.handlePhoneInput))
	mux.Handle("GET /export.xlsx", page(s.handleExportXLSX))
	mux.Handle("POST /export/sheets", page(s.handleExportSheets))

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ClientIP, s.onRateLimited)(handler)
	handler = log.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 120 * time.Second
	return s, nil
}

// Limiter exposes the rate limiter so its stale entries can be cleaned by a cache.Manager.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes, veuillez réessayer plus tard.").
		TriggerErrorNotification("Trop de requêtes, veuillez réessayer plus tard.").
		Write(w)
}
