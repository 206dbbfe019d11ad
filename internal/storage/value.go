package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueNumber
	ValueText
	ValueBool
)

// Value is a typed parameter value. It is decoded once at the catalog boundary
// and never re-parsed downstream.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
	Bool bool
}

func NumberValue(f float64) Value { return Value{Kind: ValueNumber, Num: f} }
func TextValue(s string) Value    { return Value{Kind: ValueText, Text: s} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }

func (v Value) IsZero() bool { return v.Kind == ValueNone }

// Interface returns the plain Go value (float64, string, bool or nil).
func (v Value) Interface() any {
	switch v.Kind {
	case ValueNumber:
		return v.Num
	case ValueText:
		return v.Text
	case ValueBool:
		return v.Bool
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueText:
		return v.Text
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case float64:
		*v = NumberValue(x)
	case string:
		*v = TextValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("unsupported value %s", string(data))
	}

	return nil
}
