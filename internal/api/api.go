// Package api provides the HTTP server of NoaBot: the platform webhooks plus
// liveness, health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/NoaBot/internal/messaging"
	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/observability"
	"github.com/BTreeMap/NoaBot/internal/twiliowhatsapp"
)

const (
	// DefaultPort is used when no port is configured.
	DefaultPort = "8080"
	// LivenessBody is served on GET /.
	LivenessBody = "Noa is alive 💋"
	// maxBodyBytes caps webhook payloads.
	maxBodyBytes = 1 << 20
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 15 * time.Second
)

// Processor runs an inbound message through the reply pipeline.
type Processor interface {
	Process(ctx context.Context, svc messaging.Service, msg models.InboundMessage) messaging.Result
}

// Opts holds configuration for the Server.
type Opts struct {
	Port            string
	WebhookSecret   string
	PublicURL       string
	Twilio          messaging.Service
	TwilioValidator *twiliowhatsapp.Validator
	Metrics         *observability.Metrics
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(o *Opts) { o.Port = port }
}

// WithWebhookSecret requires Telegram's secret token header on /webhook.
func WithWebhookSecret(secret string) Option {
	return func(o *Opts) { o.WebhookSecret = secret }
}

// WithPublicURL sets the externally visible base URL used for signature checks.
func WithPublicURL(url string) Option {
	return func(o *Opts) { o.PublicURL = url }
}

// WithTwilio enables the WhatsApp webhook. A nil validator skips signature checks.
func WithTwilio(svc messaging.Service, validator *twiliowhatsapp.Validator) Option {
	return func(o *Opts) {
		o.Twilio = svc
		o.TwilioValidator = validator
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// Server serves the webhooks.
type Server struct {
	processor Processor
	telegram  messaging.Service
	cfg       Opts
	started   time.Time
}

// NewServer creates a server delivering Telegram replies through tg.
func NewServer(processor Processor, tg messaging.Service, opts ...Option) *Server {
	cfg := Opts{Port: DefaultPort}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{processor: processor, telegram: tg, cfg: cfg, started: time.Now()}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.cfg.Metrics.Middleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.RequestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/", s.rootHandler)
	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", s.cfg.Metrics.Handler())
	r.Post("/webhook", s.telegramWebhookHandler)
	if s.cfg.Twilio != nil {
		r.Post("/twilio/webhook", s.twilioWebhookHandler)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
