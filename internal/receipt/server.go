package receipt

import (
	"log/slog"
	"net/http"
	"strings"
)

// Server handles HTTP requests for receipts
type Server struct {
	service     *Service
	corsOrigins []string
	maxUpload   int64
	mux         *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, corsOrigins []string, maxUpload int64) *Server {
	return NewServerWithMux(service, corsOrigins, maxUpload, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, corsOrigins []string, maxUpload int64, mux *http.ServeMux) *Server {
	s := &Server{
		service:     service,
		corsOrigins: corsOrigins,
		maxUpload:   maxUpload,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or empty when the origin is not permitted
func (s *Server) allowOrigin(origin string) string {
	if len(s.corsOrigins) == 0 {
		return "*"
	}
	for _, o := range s.corsOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return "*"
		}
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// setCORSHeaders sets CORS headers on a response
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if allowed := s.allowOrigin(r.Header.Get("Origin")); allowed != "" {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsMiddleware adds CORS headers to responses and answers preflights
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/receipt/upload-receipt/", s.handleUploadReceipt)

	s.mux.HandleFunc("GET /api/v1/receipt/receipts/{id}/file", s.handleGetRecordFile)
	s.mux.HandleFunc("GET /api/v1/receipt/receipts/{id}", s.handleGetRecord)
	s.mux.HandleFunc("DELETE /api/v1/receipt/receipts/{id}", s.handleDeleteRecord)
	s.mux.HandleFunc("GET /api/v1/receipt/receipts", s.handleListRecords)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
