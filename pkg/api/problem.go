// Package api exposes the capital ledger over HTTP: JSON handlers for
// the lifecycle operations and read surfaces, plus the middleware stack
// (request ids, logging, rate limits, bearer auth). All error responses
// are RFC 7807 problem details.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/integration"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
	"github.com/Mindburn-Labs/icl/core/pkg/policy"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// Every error response uses this shape.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteProblem writes an RFC 7807 response enriched with request context
// (trace_id from X-Request-ID, instance from the request path).
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://icl.mindburn.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if r != nil {
		problem.Instance = r.URL.Path
		problem.TraceID = w.Header().Get("X-Request-ID")
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteNotFound writes a 404 response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusNotFound, "Not Found", detail)
}

// WriteConflict writes a 409 response.
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusConflict, "Conflict", detail)
}

// WriteTooManyRequests writes a 429 response with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteProblem(w, r, http.StatusTooManyRequests, "Too Many Requests",
		"Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 response. The error is never exposed to the
// client; the logging middleware has already recorded it.
func WriteInternal(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error",
		"An unexpected error occurred. Please try again later.")
}

// WriteDomainError maps a ledger error onto the problem vocabulary. The
// detail is the error text: domain errors carry no secrets, and auditors
// need the specifics.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	detail := err.Error()
	switch {
	case errors.Is(err, capital.ErrAssetNotFound), errors.Is(err, ledger.ErrNotFound):
		WriteNotFound(w, r, detail)
	case errors.Is(err, capital.ErrDuplicateAsset):
		WriteConflict(w, r, detail)
	case errors.Is(err, capital.ErrAssetNotActive),
		errors.Is(err, capital.ErrOverlappingPeriod),
		errors.Is(err, lifecycle.ErrAlreadyCorrected),
		errors.Is(err, lifecycle.ErrUncorrectable):
		WriteConflict(w, r, detail)
	case errors.Is(err, capital.ErrInvalidValue),
		errors.Is(err, capital.ErrInvalidAmount),
		errors.Is(err, capital.ErrInvalidPeriod),
		errors.Is(err, capital.ErrUnknownMethod),
		errors.Is(err, capital.ErrNothingToDepreciate),
		errors.Is(err, ledger.ErrInvalidDraft),
		errors.Is(err, integration.ErrRejected):
		WriteProblem(w, r, http.StatusUnprocessableEntity, "Unprocessable Entity", detail)
	case errors.Is(err, policy.ErrDenied):
		WriteProblem(w, r, http.StatusForbidden, "Forbidden", detail)
	case errors.Is(err, limiter.ErrLimited):
		WriteTooManyRequests(w, r, 5)
	default:
		WriteInternal(w, r)
	}
}
