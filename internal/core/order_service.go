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

// OrderService creates and reads orders. Creation runs every line through the
// pricing engine and stores the resolved effective prices so downstream flows
// (invoicing, delivery phases) see stable numbers.
type OrderService interface {
	CreateOrder(ctx context.Context, customerID int, lines []OrderLineInput, notes string) (*Order, error)
	GetOrder(ctx context.Context, orderID int) (*Order, error)
	GetOrders(ctx context.Context, customerID int) ([]Order, error)
}

type orderService struct {
	pool    *pgxpool.Pool
	pricing PricingService
}

func NewOrderService(pool *pgxpool.Pool, pricing PricingService) OrderService {
	return &orderService{pool: pool, pricing: pricing}
}

func (s *orderService) CreateOrder(ctx context.Context, customerID int, lines []OrderLineInput, notes string) (*Order, error) {
	if len(lines) == 0 {
		return nil, validationf("order must have at least one line")
	}
	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, validationf("line %d: quantity must be positive", i+1)
		}
	}

	asOf := time.Now()

	// Resolve and freeze per-line prices before opening the write transaction;
	// pricing is a pure read.
	type pricedLine struct {
		input  OrderLineInput
		result *PriceResult
	}
	priced := make([]pricedLine, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		result, err := s.pricing.GetEffectivePrice(ctx, line.ProductID, customerID, line.Quantity, asOf)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		priced = append(priced, pricedLine{input: line, result: result})
		total = total.Add(roundMoney(line.Quantity.Mul(result.EffectivePrice)))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, internalErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, "SELECT id FROM customers WHERE id = $1", customerID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("customer %d not found", customerID)
		}
		return nil, internalErr("failed to resolve customer", err)
	}

	var orderID int
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, status, total_value, order_date, notes)
		VALUES ($1, 'PENDING', $2, $3, $4)
		RETURNING id
	`, customerID, total, asOf, notes).Scan(&orderID)
	if err != nil {
		return nil, internalErr("failed to insert order", err)
	}

	// Human-readable order number derived from the row id.
	_, err = tx.Exec(ctx,
		"UPDATE orders SET order_number = $1 WHERE id = $2",
		fmt.Sprintf("SO-%06d", orderID), orderID,
	)
	if err != nil {
		return nil, internalErr("failed to assign order number", err)
	}

	for i, pl := range priced {
		lineTotal := roundMoney(pl.input.Quantity.Mul(pl.result.EffectivePrice))
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_number, product_id, quantity,
			                         base_price, unit_price, price_source, contract_number,
			                         price_locked, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, orderID, i+1, pl.input.ProductID, pl.input.Quantity,
			pl.result.BasePrice, pl.result.EffectivePrice, pl.result.Source, pl.result.ContractNumber,
			pl.result.Locked, lineTotal)
		if err != nil {
			return nil, internalErr(fmt.Sprintf("failed to insert order line %d", i+1), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, internalErr("failed to commit order creation", err)
	}

	return s.GetOrder(ctx, orderID)
}

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT o.id, COALESCE(o.order_number, ''), o.customer_id, c.name,
		       o.status, o.total_value, o.order_date, o.notes, o.created_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1
	`, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
		&o.Status, &o.TotalValue, &o.OrderDate, &o.Notes, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("order %d not found", orderID)
		}
		return nil, internalErr("failed to fetch order", err)
	}

	lines, err := fetchOrderLines(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *orderService) GetOrders(ctx context.Context, customerID int) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, COALESCE(o.order_number, ''), o.customer_id, c.name,
		       o.status, o.total_value, o.order_date, o.notes, o.created_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.customer_id = $1
		ORDER BY o.id DESC
	`, customerID)
	if err != nil {
		return nil, internalErr("failed to query orders", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
			&o.Status, &o.TotalValue, &o.OrderDate, &o.Notes, &o.CreatedAt,
		); err != nil {
			return nil, internalErr("failed to scan order", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// fetch helpers inside and outside transactions.
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func fetchOrderLines(ctx context.Context, q pgxRowQuerier, orderID int) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT ol.id, ol.order_id, ol.line_number,
		       p.id, p.name, cat.name, p.unit,
		       ol.quantity, ol.base_price, ol.unit_price, ol.price_source,
		       COALESCE(ol.contract_number, ''), ol.price_locked, ol.line_total
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		JOIN categories cat ON cat.id = p.category_id
		WHERE ol.order_id = $1
		ORDER BY ol.line_number
	`, orderID)
	if err != nil {
		return nil, internalErr("failed to query order lines", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.LineNumber,
			&l.ProductID, &l.ProductName, &l.Category, &l.Unit,
			&l.Quantity, &l.BasePrice, &l.UnitPrice, &l.PriceSource,
			&l.ContractNumber, &l.PriceLocked, &l.LineTotal,
		); err != nil {
			return nil, internalErr("failed to scan order line", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
