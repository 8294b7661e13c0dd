package web

import (
	"net/http"

	"github.com/shopspring/decimal"
)

// createWallet handles POST /api/wallets.
func (h *Handler) createWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerRef string `json:"owner_ref"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	wallet, err := h.wallets.CreateWallet(r.Context(), req.OwnerRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, wallet)
}

// getWallet handles GET /api/wallets/{id}.
func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid wallet id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	wallet, err := h.wallets.GetWallet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, wallet)
}

// walletTransactions handles GET /api/wallets/{id}/transactions.
func (h *Handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid wallet id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	txs, err := h.wallets.GetTransactions(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, txs)
}

// topupWallet handles POST /api/wallets/{id}/topup.
func (h *Handler) topupWallet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid wallet id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Source string          `json:"source"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.wallets.Topup(r.Context(), id, req.Amount, req.Source)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, tx)
}

// withdrawWallet handles POST /api/wallets/{id}/withdraw.
func (h *Handler) withdrawWallet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid wallet id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		Destination string          `json:"destination"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.wallets.Withdraw(r.Context(), id, req.Amount, req.Destination)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, tx)
}
