// Package api serves the biotools facade over REST.
//
// Information Hiding:
// - Route layout and method checks hidden behind Handler()
// - Outcome to HTTP status mapping hidden
// - Request tracing and access logging hidden in middleware
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/biotools/mcp"
	"github.com/richinex/biotools/observability"
	"github.com/richinex/biotools/service"
	"go.opentelemetry.io/otel/attribute"
)

// maxBody bounds request bodies.
const maxBody = 4 << 20

const databasesPath = "/api/v1/blastp/databases"

// shutdownGrace is how long in-flight requests get after ctx is done.
const shutdownGrace = 10 * time.Second

// Facade is the part of service.Service the REST routes call.
type Facade interface {
	mcp.Facade
	BlastHealth() service.Health
	SpiderHealth() service.Health
}

// Server routes REST requests to the facade.
type Server struct {
	facade  Facade
	mcp     *mcp.Server
	version string
	logger  *log.Logger
}

// NewServer creates a REST server. mcpServer may be nil, in which case the
// /mcp routes are not mounted.
func NewServer(facade Facade, mcpServer *mcp.Server, version string) *Server {
	return &Server{facade: facade, mcp: mcpServer, version: version}
}

// WithLogger sets the access logger.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.logger = logger
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/blastp/health", s.handleBlastHealth)
	mux.HandleFunc("/api/v1/blastp/info", s.handleBlastInfo)
	mux.HandleFunc("/api/v1/blastp/search", s.handleSearch)
	mux.HandleFunc(databasesPath, s.handleDatabases)
	mux.HandleFunc(databasesPath+"/", s.handleEnsureDatabase)
	mux.HandleFunc("/api/v1/spider/health", s.handleSpiderHealth)
	mux.HandleFunc("/api/v1/spider/info", s.handleSpiderInfo)
	mux.HandleFunc("/api/v1/spider/predict", s.handlePredict)
	if s.mcp != nil {
		s.mcp.Register(mux)
	}
	return withTracing(s.withLogging(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	endpoints := []string{
		"GET /api/v1/blastp/health",
		"GET /api/v1/blastp/info",
		"POST /api/v1/blastp/search",
		"GET /api/v1/blastp/databases",
		"POST /api/v1/blastp/databases/{name}",
		"GET /api/v1/spider/health",
		"GET /api/v1/spider/info",
		"POST /api/v1/spider/predict",
	}
	if s.mcp != nil {
		endpoints = append(endpoints, "GET /mcp/tools", "POST /mcp/call", "POST /mcp")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "biotools",
		"version":   s.version,
		"endpoints": endpoints,
	})
}

func (s *Server) handleBlastHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.facade.BlastHealth())
}

func (s *Server) handleBlastInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.facade.BlastInfo(r.Context()))
}

func (s *Server) handleSpiderHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.facade.SpiderHealth())
}

func (s *Server) handleSpiderInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.facade.SpiderInfo())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req service.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeOutcome(w, s.facade.Search(r.Context(), req))
}

func (s *Server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeOutcome(w, s.facade.ListDatabases(r.Context()))
}

func (s *Server) handleEnsureDatabase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, databasesPath+"/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}
	writeOutcome(w, s.facade.EnsureDatabase(r.Context(), name, force))
}

type predictRequest struct {
	Sequence string `json:"sequence"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req predictRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeOutcome(w, s.facade.Predict(r.Context(), req.Sequence))
}

// decodeBody reads a JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// StatusFor maps an outcome to its HTTP status.
func StatusFor(out service.OperationOutcome) int {
	if out.OK() {
		return http.StatusOK
	}
	switch out.ErrorKind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindDatabaseNotConfigured, service.KindDatabaseUnavailable, service.KindEnvironment:
		return http.StatusServiceUnavailable
	case service.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeOutcome(w http.ResponseWriter, out service.OperationOutcome) {
	if out.RequestID != "" {
		w.Header().Set("X-Request-ID", out.RequestID)
	}
	writeJSON(w, StatusFor(out), out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.logger != nil {
			s.logger.Printf("%s %s %d", r.Method, r.URL.Path, sw.status)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if sc := span.SpanContext(); sc.HasTraceID() {
			sw.Header().Set("X-Trace-ID", sc.TraceID().String())
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}

// ListenAndServe serves h on addr until ctx is done, then shuts down.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
