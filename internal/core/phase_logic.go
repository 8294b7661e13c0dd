package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// validDeliveryNext is the delivery-status adjacency: phases move strictly
// forward through the delivery pipeline, with CANCELLED reachable from any
// non-terminal status.
var validDeliveryNext = map[DeliveryStatus]map[DeliveryStatus]bool{
	PhasePending:   {PhasePreparing: true, PhaseCancelled: true},
	PhasePreparing: {PhaseReady: true, PhaseCancelled: true},
	PhaseReady:     {PhaseShipped: true, PhaseCancelled: true},
	PhaseShipped:   {PhaseDelivered: true, PhaseCancelled: true},
	PhaseDelivered: {PhaseConfirmed: true, PhaseCancelled: true},
	PhaseConfirmed: {},
	PhaseCancelled: {},
}

// validPaymentNext is the payment-status adjacency. There is no backward path:
// refund flows are outside this coordinator.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentUnpaid:      {PaymentDepositPaid: true},
	PaymentDepositPaid: {PaymentEscrowed: true},
	PaymentEscrowed:    {PaymentReleased: true},
	PaymentReleased:    {},
}

// CanTransitionDelivery reports whether the delivery status may move from one
// state to the other in a single step.
func CanTransitionDelivery(from, to DeliveryStatus) bool {
	return validDeliveryNext[from][to]
}

// CanTransitionPayment reports whether the payment status may advance from one
// state to the other in a single step.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

// checkJointTransition enforces the compatibility matrix between the two state
// machines at the transitions where they interact:
//   - funds may only be RELEASED once the goods are DELIVERED (or CONFIRMED),
//   - a phase whose funds sit in escrow cannot be cancelled here; the escrow
//     must be resolved through a refund flow first.
func checkJointTransition(delivery DeliveryStatus, payment PaymentStatus, toDelivery *DeliveryStatus, toPayment *PaymentStatus) error {
	if toPayment != nil && *toPayment == PaymentReleased {
		d := delivery
		if toDelivery != nil {
			d = *toDelivery
		}
		if d != PhaseDelivered && d != PhaseConfirmed {
			return invalidStatef("funds cannot be released while delivery status is %s", delivery)
		}
	}
	if toDelivery != nil && *toDelivery == PhaseCancelled {
		if payment == PaymentEscrowed || payment == PaymentReleased {
			return invalidStatef("phase cannot be cancelled while funds are %s", payment)
		}
	}
	return nil
}

// computePhaseValue sums quantity × unit price over the phase's items.
func computePhaseValue(items []PhaseItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Quantity.Mul(item.UnitPrice))
	}
	return roundMoney(total)
}

// computeDeposit derives the required deposit from the phase value and a
// percentage in 0..100.
func computeDeposit(phaseValue, depositPercent decimal.Decimal) decimal.Decimal {
	if !depositPercent.IsPositive() {
		return decimal.Zero
	}
	return roundMoney(phaseValue.Mul(depositPercent).Div(oneHundred))
}

// Validate checks the structural rules for one phase spec.
func (s PhaseSpec) Validate() error {
	if s.Name == "" {
		return validationf("phase must have a name")
	}
	if s.ScheduledDate.IsZero() {
		return validationf("phase %q must have a scheduled date", s.Name)
	}
	if s.DepositPercent.IsNegative() || s.DepositPercent.GreaterThan(oneHundred) {
		return validationf("phase %q has deposit percent outside 0..100", s.Name)
	}
	if len(s.ProductIDs) == 0 {
		return validationf("phase %q must include at least one product", s.Name)
	}
	return nil
}

// phaseTemplate maps product categories to a canonical construction stage.
type phaseTemplate struct {
	categories []string
	name       string
	days       int
}

// constructionPhaseTemplates is the fixed foundation → shell → M&E → finishing
// sequence used by phase suggestions. Day offsets are counted from order date.
var constructionPhaseTemplates = []phaseTemplate{
	{categories: []string{"Cement", "Steel", "Sand", "Gravel"}, name: "Foundation & structure", days: 0},
	{categories: []string{"Brick", "Concrete", "Mortar"}, name: "Structural shell", days: 14},
	{categories: []string{"Electrical", "Plumbing", "Wiring"}, name: "M&E installation", days: 30},
	{categories: []string{"Paint", "Tiles", "Sanitary ware"}, name: "Finishing", days: 60},
}

// suggestPhaseGroups partitions order items into the construction stage
// templates by product category. Items whose category matches no template are
// left out; the caller sees only stages that have matching products.
func suggestPhaseGroups(items []OrderLine) []PhaseSuggestion {
	byCategory := make(map[string][]int)
	for _, item := range items {
		byCategory[item.Category] = append(byCategory[item.Category], item.ProductID)
	}

	var suggestions []PhaseSuggestion
	for _, tmpl := range constructionPhaseTemplates {
		var productIDs []int
		for _, cat := range tmpl.categories {
			productIDs = append(productIDs, byCategory[cat]...)
		}
		if len(productIDs) == 0 {
			continue
		}
		suggestions = append(suggestions, PhaseSuggestion{
			Name:          tmpl.name,
			Description:   "Includes: " + strings.Join(tmpl.categories, ", "),
			SuggestedDays: tmpl.days,
			ProductIDs:    productIDs,
		})
	}
	return suggestions
}
