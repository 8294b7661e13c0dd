package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// expiryWarningWindow is how far ahead the expiry sweep looks when counting
// contracts that are about to lapse.
const expiryWarningWindow = 7 * 24 * time.Hour

// PricingService resolves effective prices through the contract → price list →
// base cascade and manages the contract and price-list lifecycle around it.
type PricingService interface {
	// GetEffectivePrice resolves the price for one (product, customer, quantity)
	// tuple at the given instant. customerID 0 means "no customer" and always
	// yields the BASE price. The call is a pure read: it never mutates state.
	GetEffectivePrice(ctx context.Context, productID, customerID int, quantity decimal.Decimal, asOf time.Time) (*PriceResult, error)
	// GetPricesForOrder prices each item independently, preserving input order.
	GetPricesForOrder(ctx context.Context, customerID int, items []PriceRequestItem) ([]PriceResult, error)

	// Contract lifecycle.
	CreateContract(ctx context.Context, input CreateContractInput) (*Contract, error)
	ActivateContract(ctx context.Context, contractID int, approvedBy string) (*Contract, error)
	GetContract(ctx context.Context, contractID int) (*Contract, error)
	GetCustomerContracts(ctx context.Context, customerID int, includeExpired bool) ([]Contract, error)
	// CheckExpiredContracts is the idempotent scheduled sweep: overdue ACTIVE
	// contracts become EXPIRED, and contracts lapsing within the warning window
	// are counted without mutation. Safe to run repeatedly and concurrently.
	CheckExpiredContracts(ctx context.Context) (*ExpirySweepResult, error)

	// Price-list lifecycle.
	UpsertPriceList(ctx context.Context, input UpsertPriceListInput) (*PriceList, error)
	SeedDefaultPriceLists(ctx context.Context) (int, error)
}

type pricingService struct {
	pool   *pgxpool.Pool
	events EventPublisher
}

// NewPricingService builds the pgx-backed pricing engine. events may be nil to
// disable domain-event publishing.
func NewPricingService(pool *pgxpool.Pool, events EventPublisher) PricingService {
	return &pricingService{pool: pool, events: events}
}

// ── Price resolution ─────────────────────────────────────────────────────────

func (s *pricingService) GetEffectivePrice(ctx context.Context, productID, customerID int, quantity decimal.Decimal, asOf time.Time) (*PriceResult, error) {
	if !quantity.IsPositive() {
		return nil, validationf("quantity must be positive, got %s", quantity)
	}

	product, err := s.fetchProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	// No customer context: catalog price, unconditionally.
	if customerID == 0 {
		return basePriceResult(product), nil
	}

	customer, err := s.fetchCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		// A vanished customer degrades to BASE; only a missing product is fatal.
		return basePriceResult(product), nil
	}

	// 1. Contract price, the highest tier. Among overlapping ACTIVE contracts
	// the most recently approved wins; within one contract, lines apply in
	// stored order.
	result, err := s.resolveContractPrice(ctx, product, customerID, quantity, asOf)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	// 2. Price list matched on customer segment, highest priority first.
	lists, err := s.fetchPriceLists(ctx)
	if err != nil {
		return nil, err
	}
	if pl := pickPriceList(lists, customer.Type, asOf); pl != nil {
		if result := priceListResult(pl, product); result != nil {
			return result, nil
		}
	}

	// 3. Base catalog price.
	return basePriceResult(product), nil
}

func (s *pricingService) GetPricesForOrder(ctx context.Context, customerID int, items []PriceRequestItem) ([]PriceResult, error) {
	asOf := time.Now()
	results := make([]PriceResult, 0, len(items))
	for _, item := range items {
		r, err := s.GetEffectivePrice(ctx, item.ProductID, customerID, item.Quantity, asOf)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

func (s *pricingService) resolveContractPrice(ctx context.Context, product *Product, customerID int, quantity decimal.Decimal, asOf time.Time) (*PriceResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.contract_number, c.name, c.valid_to,
		       l.id, l.adjustment_kind, l.fixed_price, l.discount_percent,
		       l.min_quantity, l.max_quantity, l.notes
		FROM contracts c
		JOIN contract_price_lines l ON l.contract_id = c.id
		WHERE c.customer_id = $1
		  AND c.status = 'ACTIVE'
		  AND c.valid_from <= $2 AND c.valid_to >= $2
		  AND l.product_id = $3
		ORDER BY c.approved_at DESC NULLS LAST, c.id DESC, l.id
	`, customerID, asOf, product.ID)
	if err != nil {
		return nil, internalErr("failed to query contract prices", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contract Contract
			line     ContractPriceLine
			kind     *string
			fixed    *decimal.Decimal
			pct      *decimal.Decimal
		)
		if err := rows.Scan(
			&contract.ID, &contract.ContractNumber, &contract.Name, &contract.ValidTo,
			&line.ID, &kind, &fixed, &pct,
			&line.MinQuantity, &line.MaxQuantity, &line.Notes,
		); err != nil {
			return nil, internalErr("failed to scan contract price line", err)
		}
		line.ProductID = product.ID
		line.Adjustment = adjustmentFromColumns(kind, fixed, pct)
		if line.Adjustment.IsInert() || !line.matchesQuantity(quantity) {
			continue
		}
		return contractPriceResult(&contract, &line, product), nil
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("error iterating contract price lines", err)
	}
	return nil, nil
}

func adjustmentFromColumns(kind *string, fixed, pct *decimal.Decimal) PriceAdjustment {
	if kind == nil {
		return PriceAdjustment{}
	}
	switch AdjustmentKind(*kind) {
	case AdjustFixed:
		if fixed == nil {
			return PriceAdjustment{}
		}
		return PriceAdjustment{Kind: AdjustFixed, FixedPrice: *fixed}
	case AdjustDiscount:
		if pct == nil {
			return PriceAdjustment{}
		}
		return PriceAdjustment{Kind: AdjustDiscount, DiscountPercent: *pct}
	default:
		return PriceAdjustment{}
	}
}

// ── Contract lifecycle ───────────────────────────────────────────────────────

func (s *pricingService) CreateContract(ctx context.Context, input CreateContractInput) (*Contract, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var customerID int
	err = tx.QueryRow(ctx, "SELECT id FROM customers WHERE id = $1", input.CustomerID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("customer %d not found", input.CustomerID)
		}
		return nil, internalErr("failed to resolve customer", err)
	}

	number, err := nextContractNumber(ctx, tx, input.ValidFrom.Year())
	if err != nil {
		return nil, err
	}

	var contractID int
	err = tx.QueryRow(ctx, `
		INSERT INTO contracts (contract_number, customer_id, name, description, status,
		                       valid_from, valid_to, credit_term_days, special_credit_limit, terms)
		VALUES ($1, $2, $3, $4, 'DRAFT', $5, $6, $7, $8, $9)
		RETURNING id
	`, number, input.CustomerID, input.Name, input.Description,
		input.ValidFrom, input.ValidTo, input.CreditTermDays, input.SpecialCreditLimit, input.Terms,
	).Scan(&contractID)
	if err != nil {
		return nil, internalErr("failed to insert contract", err)
	}

	for _, line := range input.Lines {
		adj, err := adjustmentFromInput(line)
		if err != nil {
			return nil, err
		}

		var productID int
		err = tx.QueryRow(ctx, "SELECT id FROM products WHERE id = $1", line.ProductID).Scan(&productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, notFoundf("product %d not found", line.ProductID)
			}
			return nil, internalErr("failed to resolve product", err)
		}

		var kind *string
		var fixed, pct *decimal.Decimal
		switch adj.Kind {
		case AdjustFixed:
			k := string(AdjustFixed)
			kind, fixed = &k, &adj.FixedPrice
		case AdjustDiscount:
			k := string(AdjustDiscount)
			kind, pct = &k, &adj.DiscountPercent
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contract_price_lines (contract_id, product_id, adjustment_kind,
			                                  fixed_price, discount_percent, min_quantity, max_quantity, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, contractID, line.ProductID, kind, fixed, pct, line.MinQuantity, line.MaxQuantity, line.Notes)
		if err != nil {
			return nil, internalErr("failed to insert contract price line", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit contract creation", err)
	}

	return s.GetContract(ctx, contractID)
}

// nextContractNumber draws the next gapless per-year sequence value and
// formats the human-readable contract number.
func nextContractNumber(ctx context.Context, tx pgx.Tx, year int) (string, error) {
	var last int64
	err := tx.QueryRow(ctx, `
		INSERT INTO contract_sequences (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_number = contract_sequences.last_number + 1
		RETURNING last_number
	`, year).Scan(&last)
	if err != nil {
		return "", internalErr("failed to generate contract number", err)
	}
	return fmt.Sprintf("CT-%d-%06d", year, last), nil
}

func (s *pricingService) ActivateContract(ctx context.Context, contractID int, approvedBy string) (*Contract, error) {
	if approvedBy == "" {
		return nil, validationf("contract activation requires an approver")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var status ContractStatus
	var number string
	err = tx.QueryRow(ctx,
		"SELECT status, contract_number FROM contracts WHERE id = $1 FOR UPDATE",
		contractID,
	).Scan(&status, &number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("contract %d not found", contractID)
		}
		return nil, internalErr("failed to fetch contract", err)
	}
	if status != ContractDraft {
		return nil, invalidStatef("contract %s cannot be activated: status is %s (must be DRAFT)", number, status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE contracts
		SET status = 'ACTIVE', approved_by = $1, approved_at = NOW()
		WHERE id = $2
	`, approvedBy, contractID)
	if err != nil {
		return nil, internalErr("failed to activate contract", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit contract activation", err)
	}

	if s.events != nil {
		s.events.Publish(EventContractActivated, number, ContractActivatedPayload{
			ContractID:     contractID,
			ContractNumber: number,
			ApprovedBy:     approvedBy,
		})
	}

	return s.GetContract(ctx, contractID)
}

func (s *pricingService) CheckExpiredContracts(ctx context.Context) (*ExpirySweepResult, error) {
	now := time.Now()

	// Conditional update: contracts already EXPIRED are untouched, so repeated
	// or concurrent sweeps are no-ops after the first.
	rows, err := s.pool.Query(ctx, `
		UPDATE contracts
		SET status = 'EXPIRED'
		WHERE status = 'ACTIVE' AND valid_to < $1
		RETURNING id, contract_number
	`, now)
	if err != nil {
		return nil, internalErr("failed to expire contracts", err)
	}
	type expired struct {
		id     int
		number string
	}
	var expiredContracts []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.number); err != nil {
			rows.Close()
			return nil, internalErr("failed to scan expired contract", err)
		}
		expiredContracts = append(expiredContracts, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, internalErr("error iterating expired contracts", err)
	}

	var expiringSoon int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM contracts
		WHERE status = 'ACTIVE' AND valid_to >= $1 AND valid_to <= $2
	`, now, now.Add(expiryWarningWindow)).Scan(&expiringSoon)
	if err != nil {
		return nil, internalErr("failed to count expiring contracts", err)
	}

	if s.events != nil {
		for _, e := range expiredContracts {
			s.events.Publish(EventContractExpired, e.number, ContractExpiredPayload{
				ContractID:     e.id,
				ContractNumber: e.number,
			})
		}
	}

	return &ExpirySweepResult{Expired: len(expiredContracts), ExpiringSoon: expiringSoon}, nil
}

// ── Contract queries ─────────────────────────────────────────────────────────

func (s *pricingService) GetContract(ctx context.Context, contractID int) (*Contract, error) {
	var c Contract
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.contract_number, c.customer_id, cu.name, c.name, c.description,
		       c.status, c.valid_from, c.valid_to, c.credit_term_days, c.special_credit_limit,
		       c.terms, COALESCE(c.approved_by, ''), c.approved_at, c.created_at
		FROM contracts c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.id = $1
	`, contractID).Scan(
		&c.ID, &c.ContractNumber, &c.CustomerID, &c.CustomerName, &c.Name, &c.Description,
		&c.Status, &c.ValidFrom, &c.ValidTo, &c.CreditTermDays, &c.SpecialCreditLimit,
		&c.Terms, &c.ApprovedBy, &c.ApprovedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("contract %d not found", contractID)
		}
		return nil, internalErr("failed to fetch contract", err)
	}

	lines, err := s.fetchContractLines(ctx, contractID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return &c, nil
}

func (s *pricingService) GetCustomerContracts(ctx context.Context, customerID int, includeExpired bool) ([]Contract, error) {
	query := `
		SELECT c.id, c.contract_number, c.customer_id, cu.name, c.name, c.description,
		       c.status, c.valid_from, c.valid_to, c.credit_term_days, c.special_credit_limit,
		       c.terms, COALESCE(c.approved_by, ''), c.approved_at, c.created_at
		FROM contracts c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.customer_id = $1
	`
	if !includeExpired {
		query += " AND c.status IN ('DRAFT', 'ACTIVE')"
	}
	query += " ORDER BY c.valid_to DESC"

	rows, err := s.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, internalErr("failed to query customer contracts", err)
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		var c Contract
		if err := rows.Scan(
			&c.ID, &c.ContractNumber, &c.CustomerID, &c.CustomerName, &c.Name, &c.Description,
			&c.Status, &c.ValidFrom, &c.ValidTo, &c.CreditTermDays, &c.SpecialCreditLimit,
			&c.Terms, &c.ApprovedBy, &c.ApprovedAt, &c.CreatedAt,
		); err != nil {
			return nil, internalErr("failed to scan contract", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, internalErr("error iterating contracts", err)
	}

	for i := range contracts {
		lines, err := s.fetchContractLines(ctx, contracts[i].ID)
		if err != nil {
			return nil, err
		}
		contracts[i].Lines = lines
	}
	return contracts, nil
}

func (s *pricingService) fetchContractLines(ctx context.Context, contractID int) ([]ContractPriceLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.contract_id, l.product_id, p.name,
		       l.adjustment_kind, l.fixed_price, l.discount_percent,
		       l.min_quantity, l.max_quantity, l.notes
		FROM contract_price_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.contract_id = $1
		ORDER BY l.id
	`, contractID)
	if err != nil {
		return nil, internalErr("failed to query contract lines", err)
	}
	defer rows.Close()

	var lines []ContractPriceLine
	for rows.Next() {
		var (
			l     ContractPriceLine
			kind  *string
			fixed *decimal.Decimal
			pct   *decimal.Decimal
		)
		if err := rows.Scan(
			&l.ID, &l.ContractID, &l.ProductID, &l.ProductName,
			&kind, &fixed, &pct,
			&l.MinQuantity, &l.MaxQuantity, &l.Notes,
		); err != nil {
			return nil, internalErr("failed to scan contract line", err)
		}
		l.Adjustment = adjustmentFromColumns(kind, fixed, pct)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ── Price lists ──────────────────────────────────────────────────────────────

func (s *pricingService) UpsertPriceList(ctx context.Context, input UpsertPriceListInput) (*PriceList, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	types := make([]string, len(input.CustomerTypes))
	for i, t := range input.CustomerTypes {
		types[i] = string(t)
	}

	var pl PriceList
	var rawTypes []string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO price_lists (code, name, description, discount_percent, customer_types,
		                         priority, valid_from, valid_to, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			discount_percent = EXCLUDED.discount_percent,
			customer_types = EXCLUDED.customer_types,
			priority = EXCLUDED.priority,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			is_active = EXCLUDED.is_active
		RETURNING id, code, name, description, discount_percent, customer_types,
		          priority, valid_from, valid_to, is_active
	`, input.Code, input.Name, input.Description, input.DiscountPercent, types,
		input.Priority, input.ValidFrom, input.ValidTo, input.IsActive,
	).Scan(
		&pl.ID, &pl.Code, &pl.Name, &pl.Description, &pl.DiscountPercent, &rawTypes,
		&pl.Priority, &pl.ValidFrom, &pl.ValidTo, &pl.IsActive,
	)
	if err != nil {
		return nil, internalErr("failed to upsert price list", err)
	}
	pl.CustomerTypes = customerTypesFromStrings(rawTypes)
	return &pl, nil
}

func (s *pricingService) fetchPriceLists(ctx context.Context) ([]PriceList, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, description, discount_percent, customer_types,
		       priority, valid_from, valid_to, is_active
		FROM price_lists
		WHERE is_active = true
	`)
	if err != nil {
		return nil, internalErr("failed to query price lists", err)
	}
	defer rows.Close()

	var lists []PriceList
	for rows.Next() {
		var pl PriceList
		var rawTypes []string
		if err := rows.Scan(
			&pl.ID, &pl.Code, &pl.Name, &pl.Description, &pl.DiscountPercent, &rawTypes,
			&pl.Priority, &pl.ValidFrom, &pl.ValidTo, &pl.IsActive,
		); err != nil {
			return nil, internalErr("failed to scan price list", err)
		}
		pl.CustomerTypes = customerTypesFromStrings(rawTypes)
		lists = append(lists, pl)
	}
	return lists, rows.Err()
}

func customerTypesFromStrings(raw []string) []CustomerType {
	types := make([]CustomerType, len(raw))
	for i, t := range raw {
		types[i] = CustomerType(t)
	}
	return types
}

// SeedDefaultPriceLists installs the standard segment price lists. Existing
// lists with the same codes are replaced.
func (s *pricingService) SeedDefaultPriceLists(ctx context.Context) (int, error) {
	defaults := []UpsertPriceListInput{
		{Code: "RETAIL", Name: "Retail price", Description: "List price for regular customers",
			DiscountPercent: decimal.Zero, CustomerTypes: []CustomerType{CustomerRegular}, Priority: 0, IsActive: true},
		{Code: "VIP", Name: "VIP price", Description: "Preferential price for VIP customers",
			DiscountPercent: decimal.NewFromInt(5), CustomerTypes: []CustomerType{CustomerVIP}, Priority: 10, IsActive: true},
		{Code: "WHOLESALE", Name: "Wholesale price", Description: "Trade price for resellers",
			DiscountPercent: decimal.NewFromInt(10), CustomerTypes: []CustomerType{CustomerWholesale}, Priority: 20, IsActive: true},
		{Code: "CONTRACTOR", Name: "Contractor price", Description: "Special price for construction contractors",
			DiscountPercent: decimal.NewFromInt(15), CustomerTypes: []CustomerType{CustomerContractor}, Priority: 30, IsActive: true},
	}
	for _, input := range defaults {
		if _, err := s.UpsertPriceList(ctx, input); err != nil {
			return 0, err
		}
	}
	return len(defaults), nil
}

// ── Shared fetch helpers ─────────────────────────────────────────────────────

func (s *pricingService) fetchProduct(ctx context.Context, productID int) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.code, p.name, p.category_id, c.name, p.base_price, p.unit, p.is_active, p.created_at
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, productID).Scan(
		&p.ID, &p.Code, &p.Name, &p.CategoryID, &p.Category, &p.BasePrice, &p.Unit, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("product %d not found", productID)
		}
		return nil, internalErr("failed to fetch product", err)
	}
	return &p, nil
}

// fetchCustomer returns nil (not an error) when the customer does not exist:
// pricing degrades to BASE for soft absence.
func (s *pricingService) fetchCustomer(ctx context.Context, customerID int) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, email, phone, address, customer_type, created_at
		FROM customers
		WHERE id = $1
	`, customerID).Scan(
		&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Type, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, internalErr("failed to fetch customer", err)
	}
	return &c, nil
}
