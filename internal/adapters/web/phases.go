package web

import (
	"net/http"
	"strconv"

	"buildmart/internal/core"

	"github.com/shopspring/decimal"
)

// createPhases handles POST /api/orders/{id}/phases.
func (h *Handler) createPhases(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		Phases []core.PhaseSpec `json:"phases"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	phases, err := h.phases.CreatePhasesFromOrder(r.Context(), orderID, req.Phases)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, phases)
}

// orderPhases handles GET /api/orders/{id}/phases.
func (h *Handler) orderPhases(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	phases, err := h.phases.GetOrderPhases(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phases)
}

// phaseSuggestions handles GET /api/orders/{id}/phase-suggestions.
func (h *Handler) phaseSuggestions(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	suggestions, err := h.phases.SuggestPhases(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, suggestions)
}

// upcomingDeliveries handles GET /api/phases/upcoming?days=N (default 7).
func (h *Handler) upcomingDeliveries(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, r, "days must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
	}

	phases, err := h.phases.GetUpcomingDeliveries(r.Context(), days)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phases)
}

// getPhase handles GET /api/phases/{id}.
func (h *Handler) getPhase(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid phase id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	phase, err := h.phases.GetPhase(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phase)
}

// updatePhaseStatus handles POST /api/phases/{id}/status.
func (h *Handler) updatePhaseStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid phase id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		Status core.DeliveryStatus `json:"status"`
		Meta   *core.DeliveryMeta  `json:"meta,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, r, "status is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	phase, err := h.phases.UpdateDeliveryStatus(r.Context(), id, req.Status, req.Meta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phase)
}

// processDeposit handles POST /api/phases/{id}/deposit.
func (h *Handler) processDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid phase id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"method"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	phase, err := h.phases.ProcessDeposit(r.Context(), id, req.Amount, req.Method)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phase)
}

// escrowPhase handles POST /api/phases/{id}/escrow.
func (h *Handler) escrowPhase(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid phase id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		WalletID int `json:"wallet_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WalletID <= 0 {
		writeError(w, r, "wallet_id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	phase, err := h.phases.EscrowPhase(r.Context(), id, req.WalletID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phase)
}

// confirmAndRelease handles POST /api/phases/{id}/confirm.
func (h *Handler) confirmAndRelease(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid phase id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		ConfirmedBy       string `json:"confirmed_by"`
		RecipientWalletID int    `json:"recipient_wallet_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RecipientWalletID <= 0 {
		writeError(w, r, "recipient_wallet_id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	phase, err := h.phases.ConfirmAndRelease(r.Context(), id, req.ConfirmedBy, req.RecipientWalletID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, phase)
}
