package rules

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Approximate amount conditions match within this tolerance either side of
// the anchor value.
var approxTolerance = decimal.NewFromFloat(0.075)

// AmountCondition is the decoded amount variant. All values are cents.
// For OpIs and OpIsApprox Exact is the anchor; Low/High carry the matching
// range (equal to Exact for OpIs).
type AmountCondition struct {
	Op    Op
	Exact int64
	Low   int64
	High  int64
}

type betweenValue struct {
	Num1 json.Number `json:"num1"`
	Num2 json.Number `json:"num2"`
}

// parseCents accepts an integer cent count or a decimal currency string
// ("12.34" meaning 1234 cents).
func parseCents(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", n.String(), err)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// DecodeAmount decodes an amount condition's value. OpIs and OpIsApprox take
// a single number; OpIsBetween takes {num1, num2}.
func DecodeAmount(c Condition) (*AmountCondition, error) {
	switch c.Op {
	case OpIsBetween:
		var v betweenValue
		if err := json.Unmarshal(c.Value, &v); err != nil {
			return nil, fmt.Errorf("decode amount range: %w", err)
		}
		n1, err := parseCents(v.Num1)
		if err != nil {
			return nil, err
		}
		n2, err := parseCents(v.Num2)
		if err != nil {
			return nil, err
		}
		low, high := n1, n2
		if low > high {
			low, high = high, low
		}
		return &AmountCondition{Op: c.Op, Exact: n1, Low: low, High: high}, nil
	default:
		var n json.Number
		if err := json.Unmarshal(c.Value, &n); err != nil {
			return nil, fmt.Errorf("decode amount: %w", err)
		}
		cents, err := parseCents(n)
		if err != nil {
			return nil, err
		}
		ac := &AmountCondition{Op: c.Op, Exact: cents, Low: cents, High: cents}
		if c.Op == OpIsApprox {
			ac.Low, ac.High = approxRange(cents)
		}
		return ac, nil
	}
}

// approxRange computes the tolerance band around an anchor, in cents.
func approxRange(cents int64) (int64, int64) {
	d := decimal.NewFromInt(cents)
	delta := d.Mul(approxTolerance).Abs().Round(0).IntPart()
	return cents - delta, cents + delta
}

// AmountCents builds a stored amount condition from a cent value.
func AmountCents(op Op, cents int64) Condition {
	raw, _ := json.Marshal(cents)
	return Condition{Field: FieldAmount, Op: op, Value: raw, Type: "number"}
}

// AmountBetween builds a stored range condition from cent bounds.
func AmountBetween(num1, num2 int64) Condition {
	raw, _ := json.Marshal(betweenValue{
		Num1: json.Number(fmt.Sprint(num1)),
		Num2: json.Number(fmt.Sprint(num2)),
	})
	return Condition{Field: FieldAmount, Op: OpIsBetween, Value: raw, Type: "number"}
}

// ResolveAmount picks the value an auto-posted transaction should carry:
// the exact or anchor value for point conditions, the lower bound for an
// explicit range.
func ResolveAmount(c *AmountCondition) int64 {
	if c == nil {
		return 0
	}
	switch c.Op {
	case OpIsBetween:
		return c.Low
	default:
		return c.Exact
	}
}

// Matches reports whether a transaction amount satisfies the condition.
func (c *AmountCondition) Matches(cents int64) bool {
	if c == nil {
		return true
	}
	return cents >= c.Low && cents <= c.High
}
