package web

import (
	"net/http"
	"strconv"
	"time"

	"buildmart/internal/core"

	"github.com/shopspring/decimal"
)

// effectivePrice handles GET /api/pricing/effective-price.
// Query params: product_id (required), customer_id (optional), quantity (required).
func (h *Handler) effectivePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	productID, err := strconv.Atoi(q.Get("product_id"))
	if err != nil || productID <= 0 {
		writeError(w, r, "product_id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	customerID := 0
	if raw := q.Get("customer_id"); raw != "" {
		customerID, err = strconv.Atoi(raw)
		if err != nil || customerID < 0 {
			writeError(w, r, "customer_id must be a non-negative integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
	}

	quantity, err := decimal.NewFromString(q.Get("quantity"))
	if err != nil {
		writeError(w, r, "quantity must be a decimal number", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.pricing.GetEffectivePrice(r.Context(), productID, customerID, quantity, time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// orderPrices handles POST /api/pricing/order-prices.
func (h *Handler) orderPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID int                     `json:"customer_id"`
		Items      []core.PriceRequestItem `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, "items must not be empty", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	results, err := h.pricing.GetPricesForOrder(r.Context(), req.CustomerID, req.Items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, results)
}

// createContract handles POST /api/contracts.
func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var input core.CreateContractInput
	if !decodeJSON(w, r, &input) {
		return
	}

	contract, err := h.pricing.CreateContract(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, contract)
}

// getContract handles GET /api/contracts/{id}.
func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid contract id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	contract, err := h.pricing.GetContract(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, contract)
}

// activateContract handles POST /api/contracts/{id}/activate.
func (h *Handler) activateContract(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid contract id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	contract, err := h.pricing.ActivateContract(r.Context(), id, req.ApprovedBy)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, contract)
}

// checkExpiredContracts handles POST /api/contracts/check-expired.
// Exposed for operational use; the contract-sweeper binary calls the same
// service method on a schedule.
func (h *Handler) checkExpiredContracts(w http.ResponseWriter, r *http.Request) {
	result, err := h.pricing.CheckExpiredContracts(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// customerContracts handles GET /api/customers/{id}/contracts.
// Pass ?include_expired=true to include lapsed and terminated contracts.
func (h *Handler) customerContracts(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid customer id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	includeExpired := r.URL.Query().Get("include_expired") == "true"

	contracts, err := h.pricing.GetCustomerContracts(r.Context(), id, includeExpired)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, contracts)
}

// upsertPriceList handles PUT /api/price-lists.
func (h *Handler) upsertPriceList(w http.ResponseWriter, r *http.Request) {
	var input core.UpsertPriceListInput
	if !decodeJSON(w, r, &input) {
		return
	}

	list, err := h.pricing.UpsertPriceList(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, list)
}

// seedPriceLists handles POST /api/price-lists/seed.
func (h *Handler) seedPriceLists(w http.ResponseWriter, r *http.Request) {
	count, err := h.pricing.SeedDefaultPriceLists(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	type response struct {
		Seeded int `json:"seeded"`
	}
	writeJSON(w, response{Seeded: count})
}

// createOrder handles POST /api/orders.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID int                   `json:"customer_id"`
		Lines      []core.OrderLineInput `json:"lines"`
		Notes      string                `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.CustomerID, req.Lines, req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, order)
}

// getOrder handles GET /api/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// customerOrders handles GET /api/customers/{id}/orders.
func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid customer id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	orders, err := h.orders.GetOrders(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, orders)
}
