package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"buildmart/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds the domain services and the chi router.
type Handler struct {
	pricing core.PricingService
	orders  core.OrderService
	phases  core.PhaseService
	wallets core.WalletService
	router  chi.Router
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(pricing core.PricingService, orders core.OrderService, phases core.PhaseService, wallets core.WalletService, allowedOrigins []string) http.Handler {
	h := &Handler{
		pricing: pricing,
		orders:  orders,
		phases:  phases,
		wallets: wallets,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Pricing ───────────────────────────────────────────────────────────
		r.Get("/api/pricing/effective-price", h.effectivePrice)
		r.Post("/api/pricing/order-prices", h.orderPrices)

		// ── Contracts ─────────────────────────────────────────────────────────
		r.Post("/api/contracts", h.createContract)
		r.Get("/api/contracts/{id}", h.getContract)
		r.Post("/api/contracts/{id}/activate", h.activateContract)
		r.Post("/api/contracts/check-expired", h.checkExpiredContracts)
		r.Get("/api/customers/{id}/contracts", h.customerContracts)

		// ── Price lists ───────────────────────────────────────────────────────
		r.Put("/api/price-lists", h.upsertPriceList)
		r.Post("/api/price-lists/seed", h.seedPriceLists)

		// ── Orders ────────────────────────────────────────────────────────────
		r.Post("/api/orders", h.createOrder)
		r.Get("/api/orders/{id}", h.getOrder)
		r.Get("/api/customers/{id}/orders", h.customerOrders)

		// ── Delivery phases ───────────────────────────────────────────────────
		r.Post("/api/orders/{id}/phases", h.createPhases)
		r.Get("/api/orders/{id}/phases", h.orderPhases)
		r.Get("/api/orders/{id}/phase-suggestions", h.phaseSuggestions)
		r.Get("/api/phases/upcoming", h.upcomingDeliveries)
		r.Get("/api/phases/{id}", h.getPhase)
		r.Post("/api/phases/{id}/status", h.updatePhaseStatus)
		r.Post("/api/phases/{id}/deposit", h.processDeposit)
		r.Post("/api/phases/{id}/escrow", h.escrowPhase)
		r.Post("/api/phases/{id}/confirm", h.confirmAndRelease)

		// ── Wallets ───────────────────────────────────────────────────────────
		r.Post("/api/wallets", h.createWallet)
		r.Get("/api/wallets/{id}", h.getWallet)
		r.Get("/api/wallets/{id}/transactions", h.walletTransactions)
		r.Post("/api/wallets/{id}/topup", h.topupWallet)
		r.Post("/api/wallets/{id}/withdraw", h.withdrawWallet)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts the {id} URL parameter as an int.
func idParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
