package sensors

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerceValue converts an input value (from JSON, a form, or Go code) into
// the canonical Go type of the field: bool, int, float64 or string.
func coerceValue(f Field, value interface{}) (interface{}, error) {
	var (
		out interface{}
		err error
	)

	switch f.Kind {
	case KindBool:
		out, err = toBool(value)
	case KindInt:
		var n float64
		if n, err = toFloat(value); err == nil {
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer: %w", value, ErrInvalidValue)
			}
			out = int(clamp(n, f.Range))
		}
	case KindFloat:
		var n float64
		if n, err = toFloat(value); err == nil {
			out = clamp(n, f.Range)
		}
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T: %w", value, ErrInvalidValue)
		}
		out = s
	default:
		return nil, fmt.Errorf("unsupported kind %q: %w", f.Kind, ErrInvalidValue)
	}
	if err != nil {
		return nil, err
	}

	if len(f.Options) > 0 && !contains(f.Options, out) {
		return nil, fmt.Errorf("%v is not one of %v: %w", out, f.Options, ErrInvalidValue)
	}
	return out, nil
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean: %w", v, ErrInvalidValue)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T: %w", value, ErrInvalidValue)
	}
}

func toFloat(value interface{}) (float64, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int8:
		n = float64(v)
	case int16:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint:
		n = float64(v)
	case uint8:
		n = float64(v)
	case uint16:
		n = float64(v)
	case uint32:
		n = float64(v)
	case uint64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number: %w", v, ErrInvalidValue)
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number: %w", v, ErrInvalidValue)
		}
		n = f
	default:
		return 0, fmt.Errorf("expected number, got %T: %w", value, ErrInvalidValue)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%v is not a finite number: %w", n, ErrInvalidValue)
	}
	return n, nil
}

func clamp(n float64, r *Range) float64 {
	if r == nil {
		return n
	}
	if n < r.Min {
		return r.Min
	}
	if n > r.Max {
		return r.Max
	}
	return n
}

func contains(options []interface{}, v interface{}) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
