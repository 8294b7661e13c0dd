package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// moneyScale is the number of minor-unit digits all monetary amounts are
// rounded to. Rounding is half away from zero, applied exactly once per
// computed price so repeated resolutions are bit-identical.
const moneyScale = 2

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}

var oneHundred = decimal.NewFromInt(100)

// IsInert reports whether the adjustment carries no pricing effect. Inert
// lines are skipped during resolution.
func (a PriceAdjustment) IsInert() bool {
	return a.Kind != AdjustFixed && a.Kind != AdjustDiscount
}

// Apply computes the effective price and realized discount percent for a base
// price. Fixed prices are taken as-is (rounded); discounts multiply the base.
func (a PriceAdjustment) Apply(base decimal.Decimal) (effective, discountPercent decimal.Decimal) {
	switch a.Kind {
	case AdjustFixed:
		effective = roundMoney(a.FixedPrice)
		if base.IsPositive() {
			discountPercent = base.Sub(effective).Div(base).Mul(oneHundred).Round(moneyScale)
		}
	case AdjustDiscount:
		discountPercent = a.DiscountPercent
		effective = roundMoney(base.Mul(oneHundred.Sub(discountPercent)).Div(oneHundred))
	default:
		effective = roundMoney(base)
	}
	return effective, discountPercent
}

// matchesQuantity checks the line's quantity band: quantity must be at least
// MinQuantity and, when MaxQuantity is set, no more than it.
func (l ContractPriceLine) matchesQuantity(quantity decimal.Decimal) bool {
	if quantity.LessThan(l.MinQuantity) {
		return false
	}
	if l.MaxQuantity != nil && quantity.GreaterThan(*l.MaxQuantity) {
		return false
	}
	return true
}

// resolveContractLine picks the first applicable line for the product and
// quantity. Lines are evaluated in stored order within one contract; inert
// lines never match.
func resolveContractLine(lines []ContractPriceLine, productID int, quantity decimal.Decimal) *ContractPriceLine {
	for i := range lines {
		l := &lines[i]
		if l.ProductID != productID || l.Adjustment.IsInert() {
			continue
		}
		if l.matchesQuantity(quantity) {
			return l
		}
	}
	return nil
}

// contractPriceResult builds the locked CONTRACT-sourced result for a matched line.
func contractPriceResult(contract *Contract, line *ContractPriceLine, product *Product) *PriceResult {
	effective, pct := line.Adjustment.Apply(product.BasePrice)
	validTo := contract.ValidTo
	return &PriceResult{
		ProductID:       product.ID,
		BasePrice:       product.BasePrice,
		EffectivePrice:  effective,
		DiscountAmount:  product.BasePrice.Sub(effective),
		DiscountPercent: pct,
		Source:          SourceContract,
		SourceID:        contract.ID,
		SourceName:      contract.Name,
		ContractNumber:  contract.ContractNumber,
		Locked:          true,
		ValidUntil:      &validTo,
		Notes:           line.Notes,
	}
}

// appliesTo reports whether the price list covers the customer segment and is
// in force at the given instant. A list without a validity window is always in
// force while active.
func (pl PriceList) appliesTo(ctype CustomerType, asOf time.Time) bool {
	if !pl.IsActive {
		return false
	}
	found := false
	for _, t := range pl.CustomerTypes {
		if t == ctype {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if pl.ValidFrom != nil && asOf.Before(*pl.ValidFrom) {
		return false
	}
	if pl.ValidTo != nil && asOf.After(*pl.ValidTo) {
		return false
	}
	return true
}

// pickPriceList selects the applicable list with the highest priority.
// Equal priorities tie-break on lowest ID so selection never depends on
// iteration order.
func pickPriceList(lists []PriceList, ctype CustomerType, asOf time.Time) *PriceList {
	var best *PriceList
	for i := range lists {
		pl := &lists[i]
		if !pl.appliesTo(ctype, asOf) {
			continue
		}
		if best == nil || pl.Priority > best.Priority ||
			(pl.Priority == best.Priority && pl.ID < best.ID) {
			best = pl
		}
	}
	return best
}

// priceListResult builds the PRICE_LIST-sourced result. Lists with a
// non-positive discount contribute nothing and fall through to BASE.
func priceListResult(pl *PriceList, product *Product) *PriceResult {
	if !pl.DiscountPercent.IsPositive() {
		return nil
	}
	effective := roundMoney(product.BasePrice.Mul(oneHundred.Sub(pl.DiscountPercent)).Div(oneHundred))
	return &PriceResult{
		ProductID:       product.ID,
		BasePrice:       product.BasePrice,
		EffectivePrice:  effective,
		DiscountAmount:  product.BasePrice.Sub(effective),
		DiscountPercent: pl.DiscountPercent,
		Source:          SourcePriceList,
		SourceID:        pl.ID,
		SourceName:      pl.Name,
		Locked:          false,
		ValidUntil:      pl.ValidTo,
	}
}

// basePriceResult is the unconditional fallback: catalog price, no discount.
func basePriceResult(product *Product) *PriceResult {
	return &PriceResult{
		ProductID:      product.ID,
		BasePrice:      product.BasePrice,
		EffectivePrice: roundMoney(product.BasePrice),
		Source:         SourceBase,
		Locked:         false,
	}
}

// adjustmentFromInput converts the two optional input fields into the stored
// tagged variant, rejecting the ambiguous both-set case.
func adjustmentFromInput(in ContractLineInput) (PriceAdjustment, error) {
	switch {
	case in.FixedPrice != nil && in.DiscountPercent != nil:
		return PriceAdjustment{}, validationf("contract line for product %d sets both fixed price and discount percent", in.ProductID)
	case in.FixedPrice != nil:
		if in.FixedPrice.IsNegative() {
			return PriceAdjustment{}, validationf("contract line for product %d has negative fixed price", in.ProductID)
		}
		return PriceAdjustment{Kind: AdjustFixed, FixedPrice: *in.FixedPrice}, nil
	case in.DiscountPercent != nil:
		if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(oneHundred) {
			return PriceAdjustment{}, validationf("contract line for product %d has discount percent outside 0..100", in.ProductID)
		}
		return PriceAdjustment{Kind: AdjustDiscount, DiscountPercent: *in.DiscountPercent}, nil
	default:
		// Neither set: the line is stored but inert.
		return PriceAdjustment{}, nil
	}
}

// Validate enforces the structural rules for contract creation.
func (in CreateContractInput) Validate() error {
	if in.CustomerID <= 0 {
		return validationf("contract must reference a customer")
	}
	if in.Name == "" {
		return validationf("contract must have a name")
	}
	if !in.ValidFrom.Before(in.ValidTo) {
		return validationf("contract validity window is empty: validFrom %s >= validTo %s",
			in.ValidFrom.Format("2006-01-02"), in.ValidTo.Format("2006-01-02"))
	}
	for _, line := range in.Lines {
		if line.ProductID <= 0 {
			return validationf("contract line must reference a product")
		}
		if line.MinQuantity.IsNegative() {
			return validationf("contract line for product %d has negative min quantity", line.ProductID)
		}
		if line.MaxQuantity != nil && line.MaxQuantity.LessThan(line.MinQuantity) {
			return validationf("contract line for product %d has max quantity below min quantity", line.ProductID)
		}
		if _, err := adjustmentFromInput(line); err != nil {
			return err
		}
	}
	return nil
}

// Validate enforces the structural rules for a price-list upsert.
func (in UpsertPriceListInput) Validate() error {
	if in.Code == "" {
		return validationf("price list must have a code")
	}
	if in.Name == "" {
		return validationf("price list must have a name")
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(oneHundred) {
		return validationf("price list %s has discount percent outside 0..100", in.Code)
	}
	if len(in.CustomerTypes) == 0 {
		return validationf("price list %s must target at least one customer type", in.Code)
	}
	if in.ValidFrom != nil && in.ValidTo != nil && !in.ValidFrom.Before(*in.ValidTo) {
		return validationf("price list %s validity window is empty", in.Code)
	}
	return nil
}
