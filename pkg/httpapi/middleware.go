package httpapi

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/windi-project/windi-core/pkg/token"
)

// RequestIDMiddleware injects a unique X-Request-ID into every request
// context and response header. If the client sends an X-Request-ID, it
// is reused.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// CORSMiddleware handles Cross-Origin Resource Sharing. Allowed
// origins are read from the CORS_ORIGINS env var (comma-separated)
// when none are passed explicitly. An empty allow-list permits all
// origins (development mode).
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
			allowedOrigins = strings.Split(origins, ",")
			for i := range allowedOrigins {
				allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && isOriginAllowed(origin, allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isOriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// visitor tracks a per-IP limiter and its last-seen time.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-IP token-bucket limit across every Bridge
// and Governance endpoint (spec.md's backpressure requirement for the
// high-frequency ingest path).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

// NewRateLimiter starts a limiter allowing rps requests/second per IP
// with the given burst, and launches a background goroutine evicting
// visitors idle for more than three minutes.
func NewRateLimiter(rps int, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(1 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the per-IP rate limit, responding 429 with a
// Retry-After header when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
		}

		if !rl.getVisitor(ip).Allow() {
			WriteTooManyRequests(w, 5)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type principalKey struct{}

// WithPrincipal injects a validated VirtueToken into the request context.
func WithPrincipal(ctx context.Context, vt *token.VirtueToken) context.Context {
	return context.WithValue(ctx, principalKey{}, vt)
}

// Principal returns the VirtueToken injected by BearerAuthMiddleware,
// or nil if the request reached a public path without one.
func Principal(ctx context.Context) *token.VirtueToken {
	vt, _ := ctx.Value(principalKey{}).(*token.VirtueToken)
	return vt
}

// publicPaths never require a Virtue Token.
var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/api/v1/health",
	"/api/v1/registry",
	"/api/v1/register",
	"/api/v1/telemetry",       // Bridge authenticates via HMAC wire signatures, not bearer tokens
	"/api/v1/telemetry/batch", // same
	"/api/v1/dashboard",       // bearer token is optional here; the handler filters if one is presented
}

// publicPathPrefixes never require a Virtue Token for any path they
// prefix-match.
var publicPathPrefixes = []string{
	"/api/v1/shelf/",    // same optional-bearer rule as /api/v1/dashboard
	"/api/v1/registry/", // per-code lookup, same closed-schema visibility as /api/v1/registry
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// BearerAuthMiddleware validates the Virtue Token bearer credential on
// every request outside publicPaths, injecting the resolved token into
// the request context for downstream handlers to apply the visibility
// policy against.
func BearerAuthMiddleware(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteUnauthorized(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteUnauthorized(w, "expected 'Bearer <token>'")
				return
			}

			vt, err := issuer.Validate(parts[1])
			if err != nil {
				WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}

			ctx := WithPrincipal(r.Context(), vt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
