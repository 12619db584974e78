package recordapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackpine/recordapi/instrumentation"
	"github.com/stackpine/recordapi/security"
	"github.com/stackpine/recordapi/token"
)

const (
	tokenTypeBearer   = "Bearer"
	defaultCORSMaxAge = 3600 // 1 hour preflight cache
)

// identityContextKey is the context key for the authenticated identity
type identityContextKey struct{}

// ContextWithIdentity returns a context carrying the verified identity.
func ContextWithIdentity(ctx context.Context, identity *token.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity attached by RequireAuth,
// or nil when the request did not pass the auth gate.
func IdentityFromContext(ctx context.Context) *token.Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*token.Identity)
	return identity
}

// Handler adapts the Server logic to HTTP
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	if server.instr != nil {
		h.tracer = server.instr.Tracer("http")
	}

	return h
}

// Routes builds the full route tree with the cross-cutting middleware
// applied: request IDs, security headers, CORS, metrics, and the fault
// boundary.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(security.RequestIDMiddleware)
	r.Use(security.Headers)
	r.Use(h.cors)
	r.Use(h.httpMetrics)
	r.Use(h.recoverPanics)

	r.Get("/health", h.Health)
	r.Post("/api/authenticate", h.Authenticate)

	r.Route("/api/data", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/", h.ListRecords)
		r.Post("/", h.CreateRecord)
		r.Get("/{id}", h.GetRecord)
		r.Put("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
	})

	return r
}

// Health reports process liveness
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Authenticate handles POST /api/authenticate. It applies the per-IP
// login throttle before touching the credential store.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "authenticate")
		defer span.End()
	}

	clientIP := security.ClientIP(r, h.server.config.RateLimit.TrustProxy)

	if !h.server.AllowLogin(clientIP) {
		h.logger.Warn("Login rate limit exceeded", "ip", clientIP)
		h.server.auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
		if h.server.instr != nil {
			h.server.instr.Metrics().RecordRateLimitExceeded(ctx, r.URL.Path)
		}
		instrumentation.SetSpanError(span, "rate limited")
		w.Header().Set("Retry-After", strconv.Itoa(int(h.server.config.RateLimit.Window.Seconds())))
		h.writeAPIError(w, ErrRateLimited)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		instrumentation.SetSpanError(span, "malformed body")
		h.writeAPIError(w, ErrMalformedBody)
		return
	}

	tok, apiErr := h.server.Login(ctx, req.Username, req.Password, clientIP)
	if apiErr != nil {
		instrumentation.SetSpanError(span, apiErr.Code)
		h.writeAPIError(w, apiErr)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

// RequireAuth gates protected routes on a valid bearer token. Every
// failure mode is an explicit check mapped to 401; the handler below the
// gate always sees a verified identity in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			h.rejectToken(w, r, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], tokenTypeBearer) || parts[1] == "" {
			h.rejectToken(w, r, "malformed authorization header")
			return
		}

		identity, apiErr := h.server.Authenticate(parts[1])
		if apiErr != nil {
			h.rejectToken(w, r, "token verification failed")
			return
		}

		ctx := ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectToken writes the generic 401 and records the rejection reason
// server-side only.
func (h *Handler) rejectToken(w http.ResponseWriter, r *http.Request, reason string) {
	clientIP := security.ClientIP(r, h.server.config.RateLimit.TrustProxy)
	h.logger.Info("Request rejected at auth gate", "reason", reason, "ip", clientIP, "path", r.URL.Path)
	h.server.auditor.LogTokenRejected(clientIP, reason)
	if h.server.instr != nil {
		h.server.instr.Metrics().RecordTokenRejection(r.Context(), reason)
	}
	w.Header().Set("WWW-Authenticate", tokenTypeBearer)
	h.writeAPIError(w, ErrAuthRequired)
}

// ListRecords handles GET /api/data
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, apiErr := h.server.ListRecords(r.Context())
	if apiErr != nil {
		h.writeAPIError(w, apiErr)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetRecord handles GET /api/data/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, apiErr := h.server.GetRecord(r.Context(), id)
	if apiErr != nil {
		h.writeAPIError(w, apiErr)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// CreateRecord handles POST /api/data
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	name, age, ok := h.decodeRecordBody(w, r)
	if !ok {
		return
	}
	record, apiErr := h.server.CreateRecord(r.Context(), name, age)
	if apiErr != nil {
		h.writeAPIError(w, apiErr)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// UpdateRecord handles PUT /api/data/{id}. The id always comes from the
// path; an id in the body is ignored.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	name, age, ok := h.decodeRecordBody(w, r)
	if !ok {
		return
	}
	record, apiErr := h.server.ReplaceRecord(r.Context(), id, name, age)
	if apiErr != nil {
		h.writeAPIError(w, apiErr)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/data/{id}
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if apiErr := h.server.DeleteRecord(r.Context(), id); apiErr != nil {
		h.writeAPIError(w, apiErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} route parameter. A non-integer id cannot name
// any record, so it maps to 404 like a missing one.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeAPIError(w, ErrNotFound)
		return 0, false
	}
	return id, true
}

// decodeRecordBody decodes and validates a record create/update body.
// Validation failures produce the 422 response directly.
func (h *Handler) decodeRecordBody(w http.ResponseWriter, r *http.Request) (string, float64, bool) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeAPIError(w, ErrMalformedBody)
		return "", 0, false
	}

	name, age, verr := validateRecord(&req)
	if verr != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: verr.Fields})
		return "", 0, false
	}
	return name, age, true
}

// cors applies a permissive cross-origin policy and answers preflights.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(defaultCORSMaxAge))

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics is the final fault boundary: any panic in the pipeline
// becomes a generic 500 with the detail logged server-side only.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("Panic recovered in request pipeline",
					"panic", rec,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", security.GetRequestID(r.Context()),
					"stack", string(debug.Stack()))
				h.writeAPIError(w, ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// httpMetrics records request count and duration per method and route.
func (h *Handler) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.server.instr == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		h.server.instr.Metrics().RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, sr.status, durationMs)
	})
}

// writeJSON writes a JSON response with the given status
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeAPIError writes the HTTP mapping of an API error. A 404 carries
// an empty body.
func (h *Handler) writeAPIError(w http.ResponseWriter, apiErr *APIError) {
	if apiErr.Message == "" {
		w.WriteHeader(apiErr.Status)
		return
	}
	h.writeJSON(w, apiErr.Status, messageResponse{Message: apiErr.Message})
}
