package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmex/m/domain"
)

// Diagnostics routes replace the browser-console debug scripts of the old
// admin front end. Every action is PIN-gated and written to the audit trail.

const diagPINHeader = "X-Diagnostics-Pin"

// balanceDriftTolerance matches the display rounding of money amounts.
const balanceDriftTolerance = 0.01

func (h *Handler) requireDiagPIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pin := r.Header.Get(diagPINHeader)
		if pin == "" || bcrypt.CompareHashAndPassword([]byte(h.diagPINHash), []byte(pin)) != nil {
			h.log.Warn("diagnostics access denied", zap.String("path", r.URL.Path))
			respondError(w, http.StatusForbidden, "diagnostics PIN required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) audit(r *http.Request, action, detail string) {
	sess := sessionFrom(r)
	if err := h.sessions.Audit(r.Context(), sess.Username, action, detail); err != nil {
		h.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) diagSession(w http.ResponseWriter, r *http.Request) {
	h.audit(r, "session.inspect", "")
	sess := sessionFrom(r)
	sess.Token = ""
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) diagPing(w http.ResponseWriter, r *http.Request) {
	err := h.client.Ping(r.Context())
	if err != nil {
		h.audit(r, "backend.ping", "failed: "+err.Error())
		respondJSON(w, http.StatusBadGateway, map[string]string{"status": "unreachable", "error": err.Error()})
		return
	}
	h.audit(r, "backend.ping", "ok")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reachable"})
}

type balanceDrift struct {
	PartnerID int64   `json:"partner_id"`
	Local     float64 `json:"local_net"`
	Backend   float64 `json:"backend_net"`
	Delta     float64 `json:"delta"`
}

// diagBalanceDrift compares the locally derived balances with the backend's
// own balance endpoint. Any drift beyond rounding means one side is counting
// exchanges the other is not.
func (h *Handler) diagBalanceDrift(w http.ResponseWriter, r *http.Request) {
	local, err := h.svc.Balances(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	remote, err := h.client.Balances(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	remoteNet := make(map[int64]float64, len(remote))
	for _, b := range remote {
		remoteNet[b.PartnerID] = b.Net
	}
	var drift []balanceDrift
	seen := make(map[int64]bool, len(local.Balances))
	for _, b := range local.Balances {
		seen[b.PartnerID] = true
		if delta := b.Net - remoteNet[b.PartnerID]; math.Abs(delta) > balanceDriftTolerance {
			drift = append(drift, balanceDrift{PartnerID: b.PartnerID, Local: b.Net, Backend: remoteNet[b.PartnerID], Delta: delta})
		}
	}
	for _, b := range remote {
		if !seen[b.PartnerID] && math.Abs(b.Net) > balanceDriftTolerance {
			drift = append(drift, balanceDrift{PartnerID: b.PartnerID, Local: 0, Backend: b.Net, Delta: -b.Net})
		}
	}

	h.audit(r, "balance.drift_check", fmt.Sprintf("%d partners compared, %d drifting", len(seen), len(drift)))
	respondJSON(w, http.StatusOK, map[string]any{
		"local":   local,
		"backend": remote,
		"drift":   drift,
	})
}

func (h *Handler) diagAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.sessions.AuditTrail(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read audit trail")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, listResponse{Results: entries, Count: len(entries)})
}
