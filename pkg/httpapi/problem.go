// Package httpapi exposes the Bridge and Governance HTTP surfaces
// (spec.md §6): telemetry ingestion, dashboard reads, client registration,
// hold management, and provenance verification, all behind RFC 7807
// problem-detail error responses, request-ID propagation, CORS, and
// per-IP rate limiting.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/windi-project/windi-core/pkg/windierr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// Every WINDI HTTP error response uses this format — the only place a
// windierr.Error is converted into a status code and a JSON body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 response with an explicit title/detail.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://windi.internal/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	writeProblem(w, problem)
}

// WriteErrorR is WriteError enriched with request context (trace_id
// from X-Request-ID, instance from the request URI).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://windi.internal/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	}
	writeProblem(w, problem)
}

// WriteWindiError converts a *windierr.Error into the matching status
// code and an RFC 7807 body. This is the HTTP boundary conversion
// point referenced throughout SPEC_FULL.md §2.2 — no other layer
// converts a taxonomy error into a status code.
func WriteWindiError(w http.ResponseWriter, r *http.Request, err *windierr.Error) {
	status := statusFor(err.Code)
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://windi.internal/errors/%s", err.Code),
		Title:    titleFor(err.Code),
		Status:   status,
		Detail:   err.Error(),
		Code:     err.Token(),
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	}
	writeProblem(w, problem)
}

func statusFor(code windierr.Code) int {
	switch code {
	case windierr.CodeSchema:
		return http.StatusUnprocessableEntity
	case windierr.CodeAuth:
		return http.StatusUnauthorized
	case windierr.CodeReplay:
		return http.StatusBadRequest
	case windierr.CodeHold:
		return http.StatusForbidden
	case windierr.CodeIntegrity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func titleFor(code windierr.Code) string {
	switch code {
	case windierr.CodeSchema:
		return "Malformed Request"
	case windierr.CodeAuth:
		return "Authentication Failed"
	case windierr.CodeReplay:
		return "Replay Rejected"
	case windierr.CodeHold:
		return "Governance Hold Error"
	case windierr.CodeIntegrity:
		return "Integrity Verification Failed"
	default:
		return "Internal Server Error"
	}
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient clearance"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "the HTTP method is not supported for this endpoint")
}

func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded; retry after the specified interval")
}

// WriteInternal writes a 500 response. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
}
