package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pharmex/m/domain"
	"pharmex/m/internal/backend"
	"pharmex/m/internal/exchange"
)

type listResponse struct {
	Results any `json:"results"`
	Count   int `json:"count"`
}

func (h *Handler) listExchanges(w http.ResponseWriter, r *http.Request) {
	f := backend.ListFilter{
		Status: domain.ExchangeStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
	}
	if raw := r.URL.Query().Get("partner"); raw != "" {
		partner, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || partner <= 0 {
			respondError(w, http.StatusBadRequest, "invalid partner filter")
			return
		}
		f.Partner = partner
	}

	rows, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Results: rows, Count: len(rows)})
}

type createItemRequest struct {
	MedicineID   int64   `json:"medicine_id"`
	MedicineName string  `json:"medicine_name,omitempty"`
	UnitPrice    float64 `json:"unit_price,omitempty"`
	Quantity     int64   `json:"quantity"`
}

type createExchangeRequest struct {
	DestPharmacy int64               `json:"dest_pharmacy"`
	Notes        string              `json:"notes,omitempty"`
	Items        []createItemRequest `json:"items"`
}

func (h *Handler) createExchange(w http.ResponseWriter, r *http.Request) {
	var req createExchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft := &exchange.Draft{DestPharmacyID: req.DestPharmacy, Notes: req.Notes}
	for _, it := range req.Items {
		// Repeated medicine lines collapse into one, same as repeated
		// selections in the search widget.
		draft.AddQuantity(domain.Medicine{
			ID:        it.MedicineID,
			BrandName: it.MedicineName,
			UnitPrice: it.UnitPrice,
		}, it.Quantity)
	}

	sess := sessionFrom(r)
	ex, err := h.svc.Submit(r.Context(), sess.PharmacyID, draft)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"exchange":        ex,
		"total_quantity":  draft.TotalQuantity(),
		"estimated_value": draft.EstimatedValue(),
		"next":            "/exchanges?status=PENDING",
	})
}

// Transition handlers

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, exchange.ActionApprove, "", true)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.transition(w, r, exchange.ActionReject, body.Reason, true)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.transition(w, r, exchange.ActionCancel, "", body.Confirm)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, exchange.ActionProcess, "", true)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action exchange.Action, reason string, confirmed bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid exchange id")
		return
	}
	rows, err := h.svc.Transition(r.Context(), id, action, reason, confirmed)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Results: rows, Count: len(rows)})
}

// Balances, partners, history

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Balances(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) partners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.svc.Partners(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Results: partners, Count: len(partners)})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	partnerID, err := strconv.ParseInt(chi.URLParam(r, "pharmacyID"), 10, 64)
	if err != nil || partnerID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid pharmacy id")
		return
	}
	hist, err := h.svc.PartnerHistory(r.Context(), partnerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

// Medicine search

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	results, err := h.searcher.Search(r.Context(), query)
	if errors.Is(err, exchange.ErrSuperseded) {
		// A newer keystroke took over; this result must not update any view.
		respondJSON(w, http.StatusConflict, map[string]string{"error": "superseded"})
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Results: results, Count: len(results)})
}
