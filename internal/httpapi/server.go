// Package httpapi exposes the rule host over HTTP: dispatch, validation,
// commits and retrieval map onto core.Service operations.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"carerules/internal/core"
	"carerules/pkg/domain"
)

// maxBodyBytes caps request payloads.
const maxBodyBytes = 1 << 20

// Config controls the optional middleware of the router.
//
// RateLimit is the number of requests per minute allowed per client IP; zero
// disables limiting. JWTSecret enables HS256 bearer authentication on the
// /v1 routes. Metrics, when set, is mounted at /metrics. TracerProvider,
// when set, starts a span per request outside /healthz and /metrics.
type Config struct {
	RateLimit      int
	JWTSecret      string
	Metrics        http.Handler
	TracerProvider trace.TracerProvider
}

type server struct {
	svc    *core.Service
	logger zerolog.Logger
}

// NewRouter builds the HTTP handler around svc.
func NewRouter(svc *core.Service, cfg Config, logger zerolog.Logger) http.Handler {
	s := &server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimit(cfg.RateLimit, time.Minute))
		}
		if cfg.JWTSecret != "" {
			r.Use(bearerAuth([]byte(cfg.JWTSecret)))
		}
		r.Post("/dispatch/{trigger}", s.dispatch)
		r.Post("/validate", s.validate)
		r.Post("/objects", s.insert)
		r.Put("/objects/{id}", s.update)
		r.Get("/objects/{id}", s.retrieve)
		r.Get("/rules", s.rules)
	})
	if cfg.TracerProvider == nil {
		return r
	}
	return otelhttp.NewHandler(r, "rulehost",
		otelhttp.WithTracerProvider(cfg.TracerProvider),
		otelhttp.WithFilter(traced),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}),
	)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("request_id", chimw.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type errorBody struct {
	Error  string        `json:"error"`
	Detail string        `json:"detail,omitempty"`
	Issues domain.Issues `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeServiceError maps domain failures onto status codes. Handler failures
// stay 500 even when the rule tripped over a missing object.
func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	var blocked domain.IssueBlockError
	switch {
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "blocked", Detail: err.Error(), Issues: blocked.Issues})
	case errors.Is(err, domain.ErrHandler):
		s.logger.Warn().Err(err).Msg("rule handler failed")
		writeError(w, http.StatusInternalServerError, "handler", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrTransform):
		writeError(w, http.StatusBadRequest, "transform", err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeObject(w http.ResponseWriter, r *http.Request) (*domain.Object, bool) {
	var obj domain.Object
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&obj); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return nil, false
	}
	if obj.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "missing $type")
		return nil, false
	}
	return &obj, true
}
