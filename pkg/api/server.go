package api

import (
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/icl/core/pkg/icl"
	"github.com/Mindburn-Labs/icl/core/pkg/integration"
)

// Server serves the capital ledger over HTTP.
type Server struct {
	ledger  *icl.Ledger
	inbound *integration.Adapter
	logger  *slog.Logger
}

// NewServer wires the façade into an HTTP surface.
func NewServer(ledger *icl.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ledger: ledger, logger: logger}
}

// WithInbound enables the attribution ingest endpoint.
func (s *Server) WithInbound(a *integration.Adapter) *Server {
	s.inbound = a
	return s
}

// Routes builds the route table. Middleware is the caller's concern;
// Handler assembles the default stack.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/assets", s.handleCapitalize)
	mux.HandleFunc("GET /v1/assets", s.handleListAssets)
	mux.HandleFunc("GET /v1/assets/{id}", s.handleAssetSummary)
	mux.HandleFunc("POST /v1/assets/{id}/allocate", s.handleAllocate)
	mux.HandleFunc("POST /v1/assets/{id}/utilize", s.handleUtilize)
	mux.HandleFunc("POST /v1/assets/{id}/depreciate", s.handleDepreciate)
	mux.HandleFunc("POST /v1/assets/{id}/retire", s.handleRetire)
	mux.HandleFunc("GET /v1/assets/{id}/proof", s.handleProof)

	mux.HandleFunc("GET /v1/entries", s.handleReadRange)
	mux.HandleFunc("GET /v1/entries/{id}", s.handleEntry)
	mux.HandleFunc("POST /v1/entries/{id}/correct", s.handleCorrect)

	mux.HandleFunc("GET /v1/statement", s.handleStatement)
	mux.HandleFunc("GET /v1/verify", s.handleVerify)

	if s.inbound != nil {
		mux.HandleFunc("POST /v1/attribution", s.handleAttribution)
		mux.HandleFunc("POST /v1/attribution/batch", s.handleAttributionBatch)
	}

	return mux
}

// Handler wraps the routes in the standard middleware stack. A nil
// validator leaves the API open; rps <= 0 disables the IP limiter.
func (s *Server) Handler(validator *TokenValidator, authEnabled bool, rps, burst int) http.Handler {
	h := http.Handler(s.Routes())
	mws := []Middleware{RequestID, Logging(s.logger)}
	if rps > 0 {
		mws = append(mws, NewIPRateLimiter(rps, burst).Middleware)
	}
	if authEnabled {
		mws = append(mws, NewAuth(validator))
	}
	return Chain(h, mws...)
}
