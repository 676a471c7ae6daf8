package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-gateway/auth"
	"media-gateway/config"
	"media-gateway/models"
	"media-gateway/observability"
	"media-gateway/ratelimit"

	"github.com/go-chi/chi/v5"
)

// Identity is the resolved request identity attached to the context by
// the gateway. Identifier is the rate-limit key: the credential ID when
// authenticated, otherwise ip:<addr>.
type Identity struct {
	Credential    *models.Credential
	Identifier    string
	Authenticated bool
	// ResolveErr preserves why resolution failed so handlers can
	// distinguish a malformed key from a missing one
	ResolveErr error
}

// Tier returns the identity's tier, or read_only semantics for anonymous
// callers (anonymous tier has its own quota in the limiter)
func (id *Identity) Tier() models.Tier {
	if id.Credential != nil {
		return id.Credential.Tier
	}
	return ""
}

type contextKey string

const identityKey contextKey = "gateway_identity"

// identityHolder is a mutable slot shared across pipeline stages. The
// logger installs an empty holder before any inner stage runs; inner
// stages fill it in place, so the identity they resolve is visible to
// the outer logging stage after the handler returns even though each
// stage derives its own context.
type identityHolder struct {
	id *Identity
}

// withIdentityHolder installs an empty identity slot in the context
func withIdentityHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityKey, &identityHolder{})
}

// SetIdentity stores the resolved identity in the request context,
// filling the existing holder when one is installed
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	if h, ok := ctx.Value(identityKey).(*identityHolder); ok {
		h.id = id
		return ctx
	}
	return context.WithValue(ctx, identityKey, &identityHolder{id: id})
}

// GetIdentity retrieves the resolved identity, or nil when the request
// bypassed identity resolution
func GetIdentity(ctx context.Context) *Identity {
	if h, ok := ctx.Value(identityKey).(*identityHolder); ok {
		return h.id
	}
	return nil
}

// Gateway holds the dependencies of the request-processing pipeline
type Gateway struct {
	cfg      *config.Config
	resolver *auth.Resolver
	limiter  *ratelimit.Limiter
}

// NewGateway creates a Gateway
func NewGateway(cfg *config.Config, resolver *auth.Resolver, limiter *ratelimit.Limiter) *Gateway {
	return &Gateway{cfg: cfg, resolver: resolver, limiter: limiter}
}

// exempt reports whether the path bypasses rate limiting and identity
// resolution entirely
func (g *Gateway) exempt(path string) bool {
	for _, prefix := range g.cfg.HTTP.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	responseSize int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK, // default status code
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.responseSize += size
	return size, err
}

// RequestLogger is the outermost pipeline stage. It records method, path,
// latency, identity, and outcome for every request, and it is the only
// stage that re-raises a downstream fault: a panic is logged here and
// then propagated to the transport-level recoverer.
func (g *Gateway) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)
		r = r.WithContext(withIdentityHolder(r.Context()))

		defer func() {
			if rec := recover(); rec != nil {
				observability.Error("request panicked",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"duration_ms", time.Since(start).Milliseconds())
				panic(rec)
			}

			identity := "anonymous"
			if id := GetIdentity(r.Context()); id != nil && id.Authenticated {
				identity = id.Credential.ID.String()
			}

			observability.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"identity", identity,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", wrapped.responseSize)
		}()

		next.ServeHTTP(wrapped, r)
	})
}

// MetricsMiddleware records HTTP metrics for each request
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		// Get the route pattern from chi
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}

		metrics := observability.GetMetrics()
		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(r.Method, routePattern, statusCode, duration, wrapped.responseSize)
	})
}

// securityHeaders is the fixed set attached to every response,
// including error responses
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"X-XSS-Protection":       "1; mode=block",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Cache-Control":          "no-store",
}

// SecurityHeaders unconditionally attaches the fixed header set
func (g *Gateway) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// CORS reflects an allowed origin and short-circuits preflight requests
// with an empty-body response before any downstream stage runs
func (g *Gateway) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && g.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) originAllowed(origin string) bool {
	for _, allowed := range g.cfg.HTTP.CORSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// RateLimit resolves the request identity, counts the request against
// its window, and rejects with a structured 429 when over quota. Both
// throttled and accepted responses carry X-RateLimit-* metadata. Any
// internal fault in this stage is logged and the request forwarded
// unmodified; only the limiter's own rejection blocks traffic.
func (g *Gateway) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		decision, identity, ok := g.checkLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(SetIdentity(r.Context(), identity))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Info.Reset, 10))

		if !decision.Allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":     "rate limit exceeded",
				"limit":     decision.Info.Limit,
				"remaining": decision.Info.Remaining,
				"reset":     decision.Info.Reset,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkLimit resolves the identity and runs the admission check. The
// third return is false when the stage itself faulted, in which case the
// caller forwards the request untouched.
func (g *Gateway) checkLimit(r *http.Request) (decision ratelimit.Decision, identity *Identity, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.Error("rate limit stage fault, forwarding request",
				"path", r.URL.Path,
				"panic", rec)
			ok = false
		}
	}()

	identity = g.resolveIdentity(r)

	var customQuota *int
	if identity.Credential != nil {
		customQuota = identity.Credential.CustomQuota
	}

	decision = g.limiter.Check(r.Context(), identity.Identifier, identity.Tier(), customQuota)
	return decision, identity, true
}

// IdentityContext attaches the resolved identity to the request context
// without enforcing its presence; per-operation authorization is the
// handler's job. A resolution failure here is recorded, not fatal.
func (g *Gateway) IdentityContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// The rate limit stage usually resolved the identity already
		if GetIdentity(r.Context()) == nil {
			if identity, ok := g.safeResolveIdentity(r); ok {
				r = r.WithContext(SetIdentity(r.Context(), identity))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// safeResolveIdentity resolves the identity, treating an internal fault
// the same way checkLimit does: log it and let the caller forward the
// request without an identity.
func (g *Gateway) safeResolveIdentity(r *http.Request) (identity *Identity, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.Error("identity stage fault, forwarding request",
				"path", r.URL.Path,
				"panic", rec)
			ok = false
		}
	}()

	return g.resolveIdentity(r), true
}

// resolveIdentity resolves the request credential, falling back to an
// IP-based anonymous identity when no valid credential is presented
func (g *Gateway) resolveIdentity(r *http.Request) *Identity {
	cred, err := g.resolver.Resolve(r.Context(), r)
	if err != nil {
		return &Identity{
			Identifier: "ip:" + remoteIP(r),
			ResolveErr: err,
		}
	}

	return &Identity{
		Credential:    cred,
		Identifier:    cred.ID.String(),
		Authenticated: true,
	}
}

// remoteIP returns the request's remote address without the port.
// chi's RealIP middleware runs earlier and rewrites RemoteAddr from
// forwarding headers when present.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
