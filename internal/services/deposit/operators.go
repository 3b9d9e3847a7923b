package deposit

import (
	"fmt"
	"sort"

	"medipay/internal/services/ledger"

	"github.com/shopspring/decimal"
)

// Operator channels
const (
	ChannelMobileMoney = "mobile-money"
	ChannelCard        = "card"
)

// Operator names
const (
	OperatorMoov          = "moov"
	OperatorYasTogo       = "yas-togo"
	OperatorCarteBancaire = "carte-bancaire"
)

// Operator is a payment provider that collects deposits.
type Operator struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Channel     string          `json:"channel"`
	FeeRate     decimal.Decimal `json:"fee_rate"`
}

// RequiresPhone reports whether deposits through this operator need a
// mobile number to push the collection request to.
func (o Operator) RequiresPhone() bool {
	return o.Channel == ChannelMobileMoney
}

// Fee is gross × rate rounded half-up to a whole FCFA.
func (o Operator) Fee(gross int64) int64 {
	return decimal.NewFromInt(gross).Mul(o.FeeRate).Round(0).IntPart()
}

// DefaultOperators returns the built-in operator table.
func DefaultOperators() []Operator {
	return []Operator{
		{Name: OperatorMoov, DisplayName: "Moov Money", Channel: ChannelMobileMoney, FeeRate: decimal.RequireFromString("0.02")},
		{Name: OperatorYasTogo, DisplayName: "Yas-Togo", Channel: ChannelMobileMoney, FeeRate: decimal.RequireFromString("0.015")},
		{Name: OperatorCarteBancaire, DisplayName: "Carte bancaire", Channel: ChannelCard, FeeRate: decimal.Zero},
	}
}

// Registry holds the operators deposits may go through.
type Registry struct {
	operators map[string]Operator
}

// NewRegistry builds the operator table, applying fee rate overrides such
// as {"moov": "0.025"}.
func NewRegistry(feeOverrides map[string]string) (*Registry, error) {
	r := &Registry{operators: make(map[string]Operator)}
	for _, op := range DefaultOperators() {
		r.operators[op.Name] = op
	}

	for name, raw := range feeOverrides {
		op, ok := r.operators[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownOperator, name)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fee rate for %s: %w", name, err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("fee rate for %s must be in [0, 1): %s", name, raw)
		}
		op.FeeRate = rate
		r.operators[name] = op
	}
	return r, nil
}

func (r *Registry) Get(name string) (Operator, error) {
	op, ok := r.operators[name]
	if !ok {
		return Operator{}, fmt.Errorf("%w: %q", ledger.ErrUnknownOperator, name)
	}
	return op, nil
}

// List returns the operators sorted by name.
func (r *Registry) List() []Operator {
	out := make([]Operator, 0, len(r.operators))
	for _, op := range r.operators {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
