// Package windierr defines WINDI's stable error taxonomy.
//
// Every fallible operation in the governance pipeline returns an *Error
// rather than panicking or relying on exceptions: the HTTP boundary
// (pkg/httpapi) is the only place a *Error is converted into a status
// code and an RFC 7807 problem-detail body.
package windierr

import "fmt"

// Code is a stable, testable taxonomy prefix. Clients may match on
// Code without parsing Detail.
type Code string

const (
	// CodeSchema marks malformed or out-of-range wire input. Never
	// retryable by the client without correcting the payload.
	CodeSchema Code = "SCHEMA"
	// CodeAuth marks unknown keys, bad signatures, or expired/malformed
	// tokens. The client may re-authenticate.
	CodeAuth Code = "AUTH"
	// CodeReplay marks nonce reuse, sequence regression, or clock
	// drift. The client should resync its clock or reset its sequence.
	CodeReplay Code = "REPLAY"
	// CodeHold marks governance-hold authorization failures. Advisory
	// to the caller.
	CodeHold Code = "HOLD"
	// CodeFlood marks a per-client effect-rate escalation above
	// Throttle (pkg/guardian). The client should back off; repeated
	// floods may lead to quarantine.
	CodeFlood Code = "FLOOD"
	// CodeIntegrity marks verification mismatches (TAMPERED). Surfaced
	// verbatim to the operator; there is no automatic recovery.
	CodeIntegrity Code = "INTEGRITY"
	// CodeError marks unexpected failures. Counted and logged, never
	// allowed to panic the process.
	CodeError Code = "ERROR"
)

// Error is the taxonomy-tagged error type threaded through every
// component. Its Error() string renders as "CODE:DETAIL reason".
type Error struct {
	Code   Code
	Detail string
	Reason string
	Err    error
}

// New builds a taxonomy error with a detail token (e.g. "NONCE_REUSE")
// and a free-form human reason.
func New(code Code, detail, reason string) *Error {
	return &Error{Code: code, Detail: detail, Reason: reason}
}

// Wrap attaches an underlying error for %w-style unwrapping while
// still presenting the stable taxonomy string to callers.
func Wrap(code Code, detail, reason string, err error) *Error {
	return &Error{Code: code, Detail: detail, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s:%s", e.Code, e.Detail)
	}
	return fmt.Sprintf("%s:%s %s", e.Code, e.Detail, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Token renders the stable "CODE:DETAIL" string with no reason
// attached, suitable for message-prefix comparisons in tests.
func (e *Error) Token() string {
	return fmt.Sprintf("%s:%s", e.Code, e.Detail)
}

// Is supports errors.Is comparisons against a bare taxonomy Error
// built with the same Code and Detail (ignoring Reason/Err).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Detail == t.Detail
}

// Schema builds a SCHEMA:* error.
func Schema(detail, reason string) *Error { return New(CodeSchema, detail, reason) }

// Auth builds an AUTH:* error.
func Auth(detail, reason string) *Error { return New(CodeAuth, detail, reason) }

// Replay builds a REPLAY:* error.
func Replay(detail, reason string) *Error { return New(CodeReplay, detail, reason) }

// Hold builds a HOLD:* error.
func Hold(detail, reason string) *Error { return New(CodeHold, detail, reason) }

// Integrity builds an INTEGRITY:* error.
func Integrity(detail, reason string) *Error { return New(CodeIntegrity, detail, reason) }

// Internal builds an ERROR:* error wrapping an unexpected failure.
func Internal(detail string, err error) *Error {
	return Wrap(CodeError, detail, "", err)
}
