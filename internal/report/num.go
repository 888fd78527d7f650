package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Num is a numeric metric that may be absent. Only JSON numbers decode as
// valid; null, strings (the backend writes infinities as "inf"), booleans,
// objects and arrays decode as invalid without failing the document.
type Num struct {
	Value float64
	Valid bool
}

// N returns a valid Num.
func N(v float64) Num {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Num{}
	}
	return Num{Value: v, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Num) UnmarshalJSON(data []byte) error {
	*n = Num{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch c := data[0]; {
	case c == '-' || (c >= '0' && c <= '9'):
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil
		}
		*n = N(v)
	}
	return nil
}

// MarshalJSON writes the value, or null when invalid.
func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Int returns the value truncated to an int, or 0 when invalid.
func (n Num) Int() int {
	if !n.Valid {
		return 0
	}
	return int(n.Value)
}

// Ptr returns the value as a pointer, nil when invalid.
func (n Num) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
