package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"botforge/internal/app"
	"botforge/internal/billing"
	"botforge/internal/chat"
	"botforge/internal/ratelimit"
	"botforge/internal/util"
	"botforge/pkg/auth"
	"botforge/pkg/domain"
)

const (
	maxJSONBytes    = 1 << 20  // request bodies
	maxUploadBytes  = 10 << 20 // multipart uploads
	maxWebhookBytes = 1 << 16  // stripe's documented payload cap
)

// Server exposes the marketplace over HTTP.
type Server struct {
	app     *app.App
	billing *billing.Client
	limiter *ratelimit.FixedWindowLimiter
	mux     *http.ServeMux
}

// New builds the server and its routes. billing may be nil when Stripe is
// not configured; the webhook then answers 503. limiter may be nil to leave
// auth endpoints unlimited (tests).
func New(a *app.App, billingClient *billing.Client, limiter *ratelimit.FixedWindowLimiter) *Server {
	s := &Server{app: a, billing: billingClient, limiter: limiter}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/auth/signup", s.rateLimited(s.handleSignup))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.authenticated(s.handleLogout))
	mux.HandleFunc("GET /api/users/me", s.authenticated(s.handleMe))

	mux.HandleFunc("GET /api/bots", s.handleListBots)
	mux.HandleFunc("POST /api/bots", s.authenticated(s.handleCreateBot))
	mux.HandleFunc("GET /api/bots/mine", s.authenticated(s.handleMyBots))
	mux.HandleFunc("GET /api/bots/{id}", s.handleGetBot)
	mux.HandleFunc("DELETE /api/bots/{id}", s.authenticated(s.handleDeleteBot))
	mux.HandleFunc("POST /api/bots/{id}/files", s.authenticated(s.handleAddTrainingFile))
	mux.HandleFunc("POST /api/bots/{id}/sessions", s.authenticated(s.handleOpenSession))

	mux.HandleFunc("POST /api/chat/sessions/{sid}/messages", s.authenticated(s.handleSendMessage))
	mux.HandleFunc("GET /api/chat/sessions/{sid}/messages", s.authenticated(s.handleChatHistory))
	mux.HandleFunc("DELETE /api/chat/sessions/{sid}", s.authenticated(s.handleCloseSession))

	mux.HandleFunc("GET /api/subscriptions", s.authenticated(s.handleMySubscriptions))
	mux.HandleFunc("POST /api/billing/checkout", s.authenticated(s.handleCheckout))
	mux.HandleFunc("POST /api/billing/webhook", s.handleStripeWebhook)

	s.mux = mux
}

// Router wraps the mux with the shared middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

// authenticated resolves the bearer token to a user before calling next.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}
		user, err := s.app.UserFromToken(token)
		if err != nil {
			audit(r, "auth_token_rejected")
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, user)
	}
}

// rateLimited applies the per-IP fixed window to credential endpoints.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
			audit(r, "rate_limited", "ip", util.ClientIP(r))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// audit logs a security-relevant event with the request id for correlation.
func audit(r *http.Request, event string, attrs ...any) {
	args := append([]any{
		"event", event,
		"path", r.URL.Path,
		"request_id", util.RequestIDFromRequest(r),
	}, attrs...)
	slog.Warn("security_event", args...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeAppError maps service-layer errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrBotNotFound),
		errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, app.ErrBotNameRequired),
		errors.Is(err, app.ErrBotIsFree),
		errors.Is(err, app.ErrAlreadySubscribed),
		errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chat.ErrSubscriptionRequired):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrAccountDisabled),
		errors.Is(err, app.ErrNotBotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrEmailTaken),
		errors.Is(err, chat.ErrSendInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "the bot could not generate a reply")
	case errors.Is(err, app.ErrBillingUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
