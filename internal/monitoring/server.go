// internal/monitoring/server.go
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/valpere/CarScrapexter/internal/utils"
)

// SummaryProvider returns a JSON-encodable snapshot of the running job.
type SummaryProvider interface {
	Snapshot() interface{}
	DealerSnapshot(name string) (interface{}, bool)
}

// ServerConfig configures the operational endpoint.
type ServerConfig struct {
	ListenAddress string
	MetricsPath   string
}

// Server exposes metrics, health and the live run summary over HTTP.
type Server struct {
	config  ServerConfig
	router  *mux.Router
	logger  utils.Logger
	httpSrv *http.Server
}

// NewServer wires the routes. summary may be nil before a run starts.
func NewServer(config ServerConfig, metrics *Metrics, health *HealthManager, summary SummaryProvider) *Server {
	if config.ListenAddress == "" {
		config.ListenAddress = ":9090"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if health == nil {
		health = NewHealthManager()
	}

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		logger: utils.NewComponentLogger("ops-server"),
	}

	s.router.Handle(config.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", health.HealthHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		if summary == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run in progress"})
			return
		}
		writeJSON(w, http.StatusOK, summary.Snapshot())
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/summary/dealers/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if summary == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run in progress"})
			return
		}
		snap, ok := summary.DealerSnapshot(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown dealer %q", name)})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}).Methods(http.MethodGet)

	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens in the background until ctx is done, then shuts down.
// It returns once the listener is bound so the address is usable.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("ops server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("ops server listening on %s", ln.Addr())
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
