package adapters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go-dbsync/internal/models"
)

var operatorAliases = map[string]string{
	"":         models.OpEqual,
	"=":        models.OpEqual,
	"==":       models.OpEqual,
	"eq":       models.OpEqual,
	"!=":       models.OpNotEqual,
	"<>":       models.OpNotEqual,
	"ne":       models.OpNotEqual,
	">":        models.OpGreater,
	"gt":       models.OpGreater,
	"<":        models.OpLess,
	"lt":       models.OpLess,
	"contains": models.OpContains,
	"like":     models.OpContains,
}

// ParseFilter accepts every wire shape of a filter: nil, a flat equality
// map, a list of {field, operator, value} objects, a models.Filter, or a JSON
// string holding one of those. Operators are normalised; unknown operators
// are a ConfigurationError.
func ParseFilter(raw interface{}) (models.Filter, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case models.Filter:
		return normalizeFilter(v)
	case []models.FilterClause:
		return normalizeFilter(v)
	case map[string]interface{}:
		return FilterFromMap(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, &ConfigurationError{Field: "filters", Reason: "invalid JSON: " + err.Error()}
		}
		return ParseFilter(decoded)
	case []interface{}:
		f := make(models.Filter, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, &ConfigurationError{Field: fmt.Sprintf("filters[%d]", i), Reason: "clause must be an object"}
			}
			field, _ := m["field"].(string)
			op, _ := m["operator"].(string)
			f = append(f, models.FilterClause{Field: field, Operator: op, Value: m["value"]})
		}
		return normalizeFilter(f)
	default:
		return nil, &ConfigurationError{Field: "filters", Reason: fmt.Sprintf("unsupported filter type %T", raw)}
	}
}

// FilterFromMap turns a flat equality mapping into a clause list ordered by
// field name.
func FilterFromMap(m map[string]interface{}) models.Filter {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := make(models.Filter, 0, len(keys))
	for _, k := range keys {
		f = append(f, models.FilterClause{Field: k, Operator: models.OpEqual, Value: m[k]})
	}
	return f
}

func normalizeFilter(f models.Filter) (models.Filter, error) {
	out := make(models.Filter, 0, len(f))
	for i, c := range f {
		op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(c.Operator))]
		if !ok {
			return nil, &ConfigurationError{Field: fmt.Sprintf("filters[%d].operator", i), Reason: "unknown operator " + c.Operator}
		}
		c.Operator = op
		out = append(out, c)
	}
	return out, nil
}

// ActiveClauses returns the clauses that take part in a query. A clause with
// no field or with a null or empty-string value is dropped silently.
func ActiveClauses(f models.Filter) models.Filter {
	var out models.Filter
	for _, c := range f {
		if c.Field == "" || IsEmptyValue(c.Value) {
			continue
		}
		if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(c.Operator))]; ok {
			c.Operator = op
		} else {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsEmptyValue reports whether v is null or the empty string.
func IsEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// likePattern escapes LIKE metacharacters with '!' and wraps the value for a
// substring match.
func likePattern(v interface{}) string {
	s := fmt.Sprint(v)
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(s) + "%"
}
