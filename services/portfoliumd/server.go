package portfoliumd

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolium/core"
	"portfolium/core/types"
	"portfolium/gateway/middleware"
	"portfolium/services/fundworker"
)

// CallerHeader names the acting account when authentication is disabled.
const CallerHeader = "X-Portfolium-Caller"

// Config captures the dependencies required to construct the server.
type Config struct {
	Platform     *core.Platform
	Events       *EventIndex
	Worker       *fundworker.Worker
	Auth         middleware.AuthConfig
	RateLimits   map[string]middleware.RateLimit
	CORS         middleware.CORSConfig
	Commit       bool
	LogRequests  bool
	StreamBuffer int
	Logger       *slog.Logger
}

// Server exposes the platform engines over HTTP.
type Server struct {
	platform     *core.Platform
	events       *EventIndex
	worker       *fundworker.Worker
	commit       bool
	authEnabled  bool
	streamBuffer int
	logger       *slog.Logger

	readAuth  *middleware.Authenticator
	writeAuth *middleware.Authenticator
	limiter   *middleware.RateLimiter
	obs       *middleware.Observability

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Platform == nil {
		return nil, fmt.Errorf("portfoliumd: platform required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 256
	}
	readCfg := cfg.Auth
	readCfg.OptionalPaths = []string{"/"}
	writeCfg := cfg.Auth
	writeCfg.OptionalPaths = nil
	writeCfg.AllowAnonymous = false

	srv := &Server{
		platform:     cfg.Platform,
		events:       cfg.Events,
		worker:       cfg.Worker,
		commit:       cfg.Commit,
		authEnabled:  cfg.Auth.Enabled,
		streamBuffer: cfg.StreamBuffer,
		logger:       logger,
		readAuth:     middleware.NewAuthenticator(readCfg, logger),
		writeAuth:    middleware.NewAuthenticator(writeCfg, logger),
		limiter:      middleware.NewRateLimiter(cfg.RateLimits, logger),
		obs:          middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "portfoliumd", LogRequests: cfg.LogRequests}, logger),
	}
	srv.router = srv.buildRouter(cfg.CORS)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cors middleware.CORSConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cors))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.readAuth.Middleware(), s.limiter.Middleware("read")).Get("/ws/events", s.handleEventStream)

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.devCaller)
		s.mount(api, "guard", s.guardRoutes)
		s.mount(api, "reserve", s.reserveRoutes)
		s.mount(api, "oracle", s.oracleRoutes)
		s.mount(api, "treasury", s.treasuryRoutes)
		s.mount(api, "fund", s.fundRoutes)
		s.mount(api, "synthetic", s.syntheticRoutes)
		s.mount(api, "mirrored", s.mirroredRoutes)
		s.mount(api, "tokens", s.tokenRoutes)
		s.mount(api, "accounts", s.accountRoutes)

		reads := api.With(s.obs.Middleware("platform"), s.readAuth.Middleware(), s.limiter.Middleware("read"))
		reads.Get("/status", s.handleStatus)
		reads.Get("/events", s.handleEvents)
		reads.Get("/worker/status", s.handleWorkerStatus)
	})
	return r
}

// mount registers the routes of one module. Reads may be anonymous when the
// auth config allows it; writes always need a caller.
func (s *Server) mount(api chi.Router, module string, routes func(read, write chi.Router)) {
	api.Route("/"+module, func(m chi.Router) {
		m.Use(s.obs.Middleware(module))
		read := m.With(s.readAuth.Middleware(), s.limiter.Middleware("read"))
		write := m.With(s.writeAuth.Middleware(), s.limiter.Middleware("write"))
		routes(read, write)
	})
}

// devCaller trusts CallerHeader when authentication is disabled.
func (s *Server) devCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if s.authEnabled || raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := parseAccount(CallerHeader, raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithCaller(r.Context(), caller)))
	})
}

// apply runs fn as one platform call on behalf of the request caller and
// commits the state when configured to.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, module string, status int, fn func(caller [20]byte, e *core.Engines) (interface{}, error)) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var result interface{}
	if _, err := s.platform.Apply(module, func(e *core.Engines) error {
		var callErr error
		result, callErr = fn(caller, e)
		return callErr
	}); err != nil {
		s.writeError(w, err)
		return
	}
	if s.commit {
		if _, err := s.platform.Commit(); err != nil {
			s.writeError(w, fmt.Errorf("commit state: %w", err))
			return
		}
	}
	s.writeJSON(w, status, result)
}

func (s *Server) view(w http.ResponseWriter, fn func(e *core.Engines) (interface{}, error)) {
	var result interface{}
	if err := s.platform.View(func(e *core.Engines) error {
		var viewErr error
		result, viewErr = fn(e)
		return viewErr
	}); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusView struct {
	Height        uint64            `json:"height"`
	Root          string            `json:"root"`
	DroppedEvents uint64            `json:"droppedEvents"`
	Modules       map[string]string `json:"modules"`
	Paused        []string          `json:"paused,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	addrs := s.platform.Addresses()
	view := statusView{
		Height:        s.platform.Height(),
		Root:          s.platform.Root().Hex(),
		DroppedEvents: s.platform.DroppedEvents(),
		Modules:       make(map[string]string, len(addrs)),
	}
	for module, addr := range addrs {
		view.Modules[module] = types.HexAddress(addr)
		if s.platform.IsPaused(module) {
			view.Paused = append(view.Paused, module)
		}
	}
	sort.Strings(view.Paused)
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "fund worker not enabled"})
		return
	}
	report, err := s.worker.Status(r.Context(), 20)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
