package httpjson

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tarlanmammadov/paxos-council/pkg/internal/logutil"
	obsmetrics "github.com/tarlanmammadov/paxos-council/pkg/observability/metrics"
	"github.com/tarlanmammadov/paxos-council/pkg/observability/tracing"
	"github.com/tarlanmammadov/paxos-council/pkg/transport"
)

// Server is a minimal HTTP+JSON binding of a member's admin surface
// (status/propose/reset) plus /healthz and /metrics, intended for operator
// tooling and demo scripts rather than Paxos wire traffic.
type Server struct {
	bind     string
	memberID int
	srv      *http.Server
	logger   *log.Logger
	tlsCfg   *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":8080").
func NewServer(bind string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{bind: bind, logger: logger}
}

// WithMemberID tags spans and log lines emitted by this server with the
// council member it serves, so traces collected from multiple members can
// be told apart.
func (s *Server) WithMemberID(id int) *Server { s.memberID = id; return s }

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start launches the HTTP server and registers handlers backed by the
// provided functions. The server is shut down when the context is canceled.
func (s *Server) Start(ctx context.Context, status transport.StatusFunc, propose transport.ProposeFunc, reset transport.ResetFunc) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.status", attribute.Int("council.member", s.memberID))
		defer end()
		obsmetrics.AdminRequests.WithLabelValues("http", "status").Inc()
		data, err := status(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("status error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/propose", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req transport.ProposeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.propose", attribute.Int("council.member", s.memberID), attribute.Int("council.value_len", len(req.Value)))
		defer end()
		obsmetrics.AdminRequests.WithLabelValues("http", "propose").Inc()
		resp, err := propose(ctx, req)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			if resp.Error == "" {
				resp.Error = err.Error()
			}
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, end := tracing.StartSpan(r.Context(), "http.reset", attribute.Int("council.member", s.memberID))
		defer end()
		obsmetrics.AdminRequests.WithLabelValues("http", "reset").Inc()
		resp, err := reset(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			if resp.Error == "" {
				resp.Error = err.Error()
			}
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	s.srv = &http.Server{Addr: s.bind, Handler: mux}

	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	if s.tlsCfg != nil {
		ln = tls.NewListener(ln, s.tlsCfg)
	}

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logutil.Errorf(s.logger, logutil.Fields{"member": s.memberID, "bind": s.bind}, "httpjson: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the configured bind address.
func (s *Server) Addr() string { return s.bind }

// Stop attempts a graceful shutdown with a short timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.srv.Shutdown(c)
	s.srv = nil
	return err
}

var _ transport.AdminServer = (*Server)(nil)
