// Package http exposes the bot dispatcher as a JSON webhook.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finbot/internal/bot"
	applog "finbot/internal/log"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/middleware/security"
	"finbot/internal/middleware/trace"
)

// MessageHandler turns an inbound chat message into a reply.
type MessageHandler interface {
	Handle(ctx context.Context, msg bot.Message) bot.Reply
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server

	messages MessageHandler
	reports  bot.ReportRunner
	ready    map[string]ReadinessCheck
	now      func() time.Time
	logger   *applog.Logger

	botToken    string
	rateConfig  ratelimit.Config
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithBotToken requires X-Bot-Token on /api routes.
func WithBotToken(token string) Option {
	return func(s *Server) { s.botToken = token }
}

// WithReportRunner enables POST /api/reports/daily.
func WithReportRunner(r bot.ReportRunner) Option {
	return func(s *Server) { s.reports = r }
}

// WithRateLimit sets the per-client budget for /api routes.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateConfig.Requests = requests
		s.rateConfig.Window = window
	}
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.ready[name] = check
		}
	}
}

func WithLogger(logger *applog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for rate limiting and report triggers.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
		s.rateConfig.Now = now
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, messages MessageHandler, opts ...Option) *Server {
	s := &Server{
		messages:   messages,
		ready:      make(map[string]ReadinessCheck),
		now:        time.Now,
		logger:     applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: slog.Default().Handler()}),
		rateConfig: ratelimit.DefaultConfig(),
		detector:   security.NewDetector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rateLimiter = ratelimit.NewLimiter(s.rateConfig)
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)

	api := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		handler = s.detector.RequireToken(s.botToken, s.rejectToken)(handler)
		handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.rejectRate)(handler)
		return handler
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/messages", api(s.handleMessage))
	mux.Handle("POST /api/reports/daily", api(s.handleDailyReport))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(s.flagSuspicious(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// flagSuspicious logs probing requests; they still get the mux's answer.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rejectToken(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected bot token",
		applog.FieldClientIP, s.detector.ExtractClientIP(r))
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func (s *Server) rejectRate(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// Shutdown stops the rate limiter and gracefully shuts down the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
