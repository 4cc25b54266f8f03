// Package coerce normalizes a single scalar value according to the
// configured null-handling and stringification policy, so downstream
// writers see a finite, predictable domain of value kinds regardless of how
// varied the input's JSON types are.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NullHandling controls whether a null/empty scalar is dropped or kept as an
// empty string.
type NullHandling string

const (
	// Skip drops null/empty values entirely (the default).
	Skip NullHandling = "skip"
	// Include materializes null/empty values as an empty string.
	Include NullHandling = "include"
)

// invalidFloatSentinel is what NaN/±Inf become under stringification; under
// plain (non-stringified) output they are omitted instead, since no
// downstream columnar format has a native representation for them.
const invalidFloatSentinel = "_error_invalid_float"

// Options configures coercion. Zero value is the default policy: skip
// nulls, no stringification.
type Options struct {
	NullHandling NullHandling
	CastToString bool
}

// Value coerces a single scalar. ok is false when the caller should omit the
// value from its output entirely (the OMIT sentinel in the spec).
func Value(v interface{}, opts Options) (result interface{}, ok bool) {
	if isNullOrEmptyString(v) {
		if opts.NullHandling == Include {
			return "", true
		}
		return nil, false
	}

	if f, isFloat := asFloat(v); isFloat && isInvalid(f) {
		if opts.CastToString {
			return invalidFloatSentinel, true
		}
		return nil, false
	}

	if opts.CastToString {
		return stringify(v), true
	}

	return v, true
}

func isNullOrEmptyString(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, isStr := v.(string); isStr && s == "" {
		return true
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func isInvalid(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]interface{}, []interface{}:
		if encoded, err := json.Marshal(val); err == nil {
			return string(encoded)
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
