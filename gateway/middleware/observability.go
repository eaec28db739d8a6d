package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"portfolium/observability"
)

type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
}

// Observability traces each request and records it in the module metrics.
type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "portfoliumd"
	}
	return &Observability{cfg: cfg, logger: logger}
}

// Middleware instruments handlers of one API module.
func (o *Observability) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			observability.ModuleMetrics().Observe(module, r.Method, recorder.status, duration)
			if o.cfg.LogRequests {
				o.logger.Info("request served",
					slog.String("module", module),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.status),
					slog.Duration("duration", duration))
			}
		})
		return otelhttp.NewHandler(measured, o.cfg.ServiceName+"/"+module)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
