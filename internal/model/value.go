package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Value is a market number that may be unknown.
// The zero Value is unknown; it marshals to JSON null and never reads as 0.
type Value struct {
	V  float64
	OK bool
}

// Unknown is the explicit "no data" marker.
var Unknown = Value{}

// Known wraps v. NaN and infinities are unknown.
func Known(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unknown
	}
	return Value{V: v, OK: true}
}

// Round2 rounds x to two decimal places.
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// Round2 returns v rounded to two decimals, preserving unknown.
func (v Value) Round2() Value {
	if !v.OK {
		return Unknown
	}
	return Known(Round2(v.V))
}

// Sub returns v - o rounded to two decimals, unknown if either side is unknown.
func (v Value) Sub(o Value) Value {
	if !v.OK || !o.OK {
		return Unknown
	}
	return Known(Round2(v.V - o.V))
}

// Or returns v when known, otherwise fallback.
func (v Value) Or(fallback Value) Value {
	if v.OK {
		return v
	}
	return fallback
}

// String formats the value with two decimals, or "" when unknown.
func (v Value) String() string {
	if !v.OK {
		return ""
	}
	return strconv.FormatFloat(v.V, 'f', 2, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.OK {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

func (v *Value) UnmarshalJSON(raw []byte) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*v = Unknown
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	*v = Known(f)
	return nil
}

// Mean returns the mean of the known values, unknown if there are none.
func Mean(values ...Value) Value {
	sum, n := 0.0, 0
	for _, v := range values {
		if v.OK {
			sum += v.V
			n++
		}
	}
	if n == 0 {
		return Unknown
	}
	return Known(sum / float64(n))
}
