package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Stringify renders v the way values are compared and interpolated:
// nil is "", floats drop trailing zeros, maps and slices are JSON.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	case map[string]interface{}, []interface{}, []string, []map[string]interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// ValuesEqual is the equality used for conflict detection: nil equals the
// empty string, numbers compare by value across int and float types, and
// anything else compares by its string form.
func ValuesEqual(a, b interface{}) bool {
	if isBlank(a) || isBlank(b) {
		return isBlank(a) && isBlank(b)
	}
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	// bools count as 1/0 against numbers
	if aok && !bok {
		fb, bok = boolNumber(b)
	} else if bok && !aok {
		fa, aok = boolNumber(a)
	}
	if aok && bok {
		return fa == fb
	}
	return Stringify(a) == Stringify(b)
}

func boolNumber(v interface{}) (float64, bool) {
	b, ok := v.(bool)
	if !ok {
		return 0, false
	}
	if b {
		return 1, true
	}
	return 0, true
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// truthy follows the usual falsy set: nil, zero numbers, false, "" and empty
// collections.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case map[string]interface{}:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
