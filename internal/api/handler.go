package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pharmex/m/domain"
	"pharmex/m/internal/backend"
	"pharmex/m/internal/exchange"
	"pharmex/m/internal/session"
)

type ctxKey string

const ctxSession ctxKey = "session"

// Handler bundles dependencies for the gateway's HTTP handlers.
type Handler struct {
	sessions    *session.Store
	client      *backend.Client
	svc         *exchange.Service
	searcher    *exchange.Searcher
	diagPINHash string
	log         *zap.Logger
}

// New constructs a Handler.
func New(sessions *session.Store, client *backend.Client, svc *exchange.Service, searcher *exchange.Searcher, diagPINHash string, logger *zap.Logger) *Handler {
	return &Handler{
		sessions:    sessions,
		client:      client,
		svc:         svc,
		searcher:    searcher,
		diagPINHash: diagPINHash,
		log:         logger,
	}
}

// Router wires up the gateway API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Post("/auth/login", h.login)

	r.Group(func(pr chi.Router) {
		pr.Use(h.sessionMiddleware)

		pr.Post("/auth/logout", h.logout)

		pr.Route("/exchanges", func(r chi.Router) {
			r.Get("/", h.listExchanges)
			r.Post("/", h.createExchange)
			r.Post("/{id}/approve", h.approve)
			r.Post("/{id}/reject", h.reject)
			r.Post("/{id}/cancel", h.cancel)
			r.Post("/{id}/process", h.process)
		})

		pr.Get("/balances", h.balances)
		pr.Get("/partners", h.partners)
		pr.Get("/history/{pharmacyID}", h.history)
		pr.Get("/medicines/search", h.searchMedicines)

		if h.diagPINHash != "" {
			pr.Route("/diagnostics", func(r chi.Router) {
				r.Use(h.requireDiagPIN)
				r.Get("/session", h.diagSession)
				r.Post("/ping", h.diagPing)
				r.Get("/balance-drift", h.diagBalanceDrift)
				r.Get("/audit", h.diagAudit)
			})
		}
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// Session handling

func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.Current(r.Context())
		if errors.Is(err, session.ErrNoSession) {
			respondUnauthorized(w)
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to read session")
			return
		}
		ctx := context.WithValue(r.Context(), ctxSession, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) domain.Session {
	sess, _ := r.Context().Value(ctxSession).(domain.Session)
	return sess
}

// Auth handlers

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	resp, err := h.client.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	sess := domain.Session{
		Token:        resp.Token,
		UserID:       resp.User.ID,
		Username:     resp.User.Username,
		Role:         resp.User.Role,
		PharmacyID:   resp.Pharmacy.ID,
		PharmacyName: resp.Pharmacy.Name,
	}
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to persist session")
		return
	}

	// The token stays in the session store; it is never echoed back.
	sess.Token = ""
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Invalidate(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to clear session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out", "redirect": "/auth/login"})
}

// Error mapping

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var vErr *backend.ValidationError
	var tErr *exchange.TransitionError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		// The client already invalidated the session.
		respondUnauthorized(w)
	case errors.Is(err, exchange.ErrReasonRequired),
		errors.Is(err, exchange.ErrConfirmRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exchange.ErrTransitionInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &tErr):
		respondError(w, http.StatusConflict, tErr.Error())
	case errors.Is(err, backend.ErrConflict):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"hint":  "refetch the exchange list; it was modified by another actor",
		})
	case errors.Is(err, backend.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &vErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  vErr.Message,
			"fields": vErr.Fields,
		})
	case errors.Is(err, backend.ErrUnavailable):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("unhandled service error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondUnauthorized(w http.ResponseWriter) {
	respondJSON(w, http.StatusUnauthorized, map[string]string{
		"error":    "session is not authorized",
		"redirect": "/auth/login",
	})
}
