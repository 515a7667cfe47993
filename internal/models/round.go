package models

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimal places.
// Decimal arithmetic keeps 1/2.10 at 0.4762 rather than drifting on the
// binary representation.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundPtr rounds through a nil-able pointer.
func RoundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v, places)
	return &r
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
