package fundworker

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusReport is the payload of GET /status.
type StatusReport struct {
	Application string          `json:"application,omitempty"`
	Tasks       []TaskStatus    `json:"tasks"`
	Orders      FulfillerStatus `json:"orders"`
	Quotes      []Quote         `json:"quotes,omitempty"`
}

// AdminServer exposes health, metrics and task status over HTTP.
type AdminServer struct {
	worker *Worker
	mux    *http.ServeMux
}

// NewAdminServer constructs a server reporting on worker.
func NewAdminServer(worker *Worker) *AdminServer {
	mux := http.NewServeMux()
	server := &AdminServer{worker: worker, mux: mux}
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", server.handleStatus)
	return server
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("quotes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid quotes limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	report, err := s.worker.Status(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
