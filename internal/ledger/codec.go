package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits the contract uses for
// monetary values. Amounts cross the wire as base-10 strings of the value
// scaled by 10^AmountScale; this file is the only place that encoding is
// interpreted.
const AmountScale = 18

// encodeAmount converts a decimal amount to the contract's scaled integer
// string. Amounts with more precision than the scale supports are rejected
// rather than silently truncated.
func encodeAmount(d decimal.Decimal) (string, error) {
	if d.Exponent() < -AmountScale {
		return "", fmt.Errorf("amount %s exceeds %d fractional digits", d, AmountScale)
	}
	return d.Shift(AmountScale).BigInt().String(), nil
}

// decodeAmount converts a scaled integer string back to a decimal amount.
func decodeAmount(s string) (decimal.Decimal, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("malformed scaled amount %q", s)
	}
	return decimal.NewFromBigInt(n, -AmountScale), nil
}

// encodeTimestamp converts a point in time to the contract's unix seconds.
func encodeTimestamp(t time.Time) int64 {
	return t.Unix()
}

// decodeTimestamp converts contract unix seconds to a point in time.
func decodeTimestamp(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}
