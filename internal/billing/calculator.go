package billing

import (
	"fmt"
	"time"

	"github.com/openbilling/credits/internal/metric"
	"github.com/shopspring/decimal"
)

// Charge computes the credits owed for the usage accumulated between two
// consecutive samples of one metric: (curr - prev) * cost per hour. The
// inputs are cumulative totals, so a non-positive delta (counter reset,
// replayed old data) charges nothing rather than refunding.
func Charge(m metric.Metric, prevValue, currValue decimal.Decimal, prevTS, currTS time.Time) (decimal.Decimal, error) {
	if !currTS.After(prevTS) {
		return decimal.Zero, fmt.Errorf("samples out of order: %s not after %s", currTS, prevTS)
	}

	delta := currValue.Sub(prevValue)
	if delta.Sign() <= 0 {
		return decimal.Zero, nil
	}
	return delta.Mul(m.CostPerHour), nil
}
