package types

import (
	"strconv"
)

// Quantity is a count of the smallest indivisible unit ("Pcs").
// Stock is never split below one piece, so an integer is exact.
type Quantity int64

func (q Quantity) Int64() int64 { return int64(q) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

// Min returns the smaller of q and other.
func (q Quantity) Min(other Quantity) Quantity {
	if other < q {
		return other
	}
	return q
}

// String returns the quantity with its unit, e.g. "12 Pcs".
func (q Quantity) String() string {
	return strconv.FormatInt(int64(q), 10) + " Pcs"
}

// SumQuantities adds up a list of quantities.
func SumQuantities(qs ...Quantity) Quantity {
	var total Quantity
	for _, q := range qs {
		total += q
	}
	return total
}
