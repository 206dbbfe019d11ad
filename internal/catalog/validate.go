package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"estimator/internal/storage"
)

// Validate checks one raw value (as decoded from JSON) against a parameter and
// returns it as a typed value. The returned error is a *FieldError.
func Validate(p storage.Parameter, raw any) (storage.Value, error) {
	if v, ok := raw.(storage.Value); ok {
		raw = v.Interface()
	}

	switch p.Type {
	case storage.ParamNumber:
		return validateNumber(p, raw)
	case storage.ParamSelect:
		return validateSelect(p, raw)
	case storage.ParamText:
		return validateText(p, raw)
	case storage.ParamBoolean:
		return validateBool(p, raw)
	}

	return storage.Value{}, &FieldError{Code: p.Code, Kind: KindInvalidText, Message: fmt.Sprintf("unknown parameter type %q", p.Type)}
}

func toNumber(raw any) (float64, bool) {
	var f float64
	switch x := raw.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		v, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = v
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func validateNumber(p storage.Parameter, raw any) (storage.Value, error) {
	f, ok := toNumber(raw)
	if !ok {
		return storage.Value{}, &FieldError{Code: p.Code, Kind: KindNotANumber, Message: fmt.Sprintf("%v is not a number", raw)}
	}
	if p.MinValue != nil && f < *p.MinValue {
		return storage.Value{}, &FieldError{Code: p.Code, Kind: KindOutOfRange, Message: fmt.Sprintf("%v is less than %v", f, *p.MinValue)}
	}
	if p.MaxValue != nil && f > *p.MaxValue {
		return storage.Value{}, &FieldError{Code: p.Code, Kind: KindOutOfRange, Message: fmt.Sprintf("%v is greater than %v", f, *p.MaxValue)}
	}
	return storage.NumberValue(f), nil
}

func toText(raw any) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}

// A selected option that reads as a number is bound as a number so formulas
// can use it in arithmetic.
func validateSelect(p storage.Parameter, raw any) (storage.Value, error) {
	s, ok := toText(raw)
	if ok {
		for _, o := range p.SelectOptions {
			if o != s {
				continue
			}
			if f, err := strconv.ParseFloat(o, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return storage.NumberValue(f), nil
			}
			return storage.TextValue(o), nil
		}
	}
	return storage.Value{}, &FieldError{
		Code:    p.Code,
		Kind:    KindInvalidOption,
		Message: fmt.Sprintf("%v is not one of [%s]", raw, strings.Join(p.SelectOptions, ", ")),
	}
}

func validateText(p storage.Parameter, raw any) (storage.Value, error) {
	s, ok := toText(raw)
	if !ok {
		return storage.Value{}, &FieldError{Code: p.Code, Kind: KindInvalidText, Message: fmt.Sprintf("%v is not text", raw)}
	}
	if p.Validation != nil && p.Validation.Pattern != "" {
		re, err := regexp.Compile(p.Validation.Pattern)
		if err != nil || !re.MatchString(s) {
			msg := p.Validation.Message
			if msg == "" {
				msg = fmt.Sprintf("value does not match %s", p.Validation.Pattern)
			}
			return storage.Value{}, &FieldError{Code: p.Code, Kind: KindPatternMismatch, Message: msg}
		}
	}
	return storage.TextValue(s), nil
}

func validateBool(p storage.Parameter, raw any) (storage.Value, error) {
	switch x := raw.(type) {
	case bool:
		return storage.BoolValue(x), nil
	case string:
		switch strings.TrimSpace(x) {
		case "true":
			return storage.BoolValue(true), nil
		case "false":
			return storage.BoolValue(false), nil
		}
	}
	return storage.Value{}, &FieldError{Code: p.Code, Kind: KindNotABoolean, Message: fmt.Sprintf("%v is not true or false", raw)}
}

func zeroValue(t storage.ParameterType) storage.Value {
	switch t {
	case storage.ParamNumber:
		return storage.NumberValue(0)
	case storage.ParamBoolean:
		return storage.BoolValue(false)
	default:
		return storage.TextValue("")
	}
}

func absent(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	if v, ok := raw.(storage.Value); ok && v.IsZero() {
		return true
	}
	return false
}

// ValidateAll validates every template parameter against the supplied values.
// Errors are collected, not short-circuited, and returned as *ValidationErrors.
// Missing values fall back to the default; a missing optional parameter without
// a default binds the zero value of its type.
func ValidateAll(params []storage.TemplateParameter, values map[string]any) (map[string]storage.Value, error) {
	out := make(map[string]storage.Value, len(params))
	var verrs ValidationErrors

	for _, tp := range params {
		p := tp.Parameter
		raw, ok := values[p.Code]

		if !ok || absent(raw) {
			switch {
			case !p.DefaultValue.IsZero():
				v, err := Validate(p, p.DefaultValue)
				if err != nil {
					verrs.Fields = append(verrs.Fields, *err.(*FieldError))
					continue
				}
				out[p.Code] = v
			case p.IsRequired:
				verrs.Fields = append(verrs.Fields, FieldError{Code: p.Code, Kind: KindRequired, Message: "value is required"})
			default:
				out[p.Code] = zeroValue(p.Type)
			}
			continue
		}

		v, err := Validate(p, raw)
		if err != nil {
			verrs.Fields = append(verrs.Fields, *err.(*FieldError))
			continue
		}
		out[p.Code] = v
	}

	if len(verrs.Fields) > 0 {
		return nil, &verrs
	}
	return out, nil
}

// Unknown returns the supplied codes that are not parameters of the template.
func Unknown(params []storage.TemplateParameter, values map[string]any) []string {
	known := make(map[string]bool, len(params))
	for _, tp := range params {
		known[tp.Parameter.Code] = true
	}
	var unknown []string
	for code := range values {
		if !known[code] {
			unknown = append(unknown, code)
		}
	}
	sort.Strings(unknown)
	return unknown
}
