package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go-dbsync/internal/models"
)

type transformKind int

const (
	transformNoop transformKind = iota
	transformUpper
	transformLower
	transformTrim
	transformJSON
	transformStr
	transformInt
	transformFloat
	transformBool
	transformDefault
	transformPrefix
	transformSuffix
	transformReplace
	transformTemplate
	transformScript
)

var bareTransforms = map[string]transformKind{
	"upper": transformUpper,
	"lower": transformLower,
	"trim":  transformTrim,
	"json":  transformJSON,
	"str":   transformStr,
	"int":   transformInt,
	"float": transformFloat,
	"bool":  transformBool,
}

var argTransforms = map[string]transformKind{
	"default":  transformDefault,
	"prefix":   transformPrefix,
	"suffix":   transformSuffix,
	"replace":  transformReplace,
	"template": transformTemplate,
	"script":   transformScript,
}

var templateToken = regexp.MustCompile(`@(\w+)|\{\{(\w+)\}\}`)

// templatePart is either literal text or a field reference.
type templatePart struct {
	literal string
	field   string
}

// Transform is a parsed transform expression. Parse once, apply per record.
// A nil *Transform is the identity.
type Transform struct {
	kind     transformKind
	expr     string
	arg      string
	from, to string
	parts    []templatePart
	script   *script
}

// ParseTransform parses expr. Keywords are case-insensitive; unknown names
// parse to a no-op, so parsing never fails.
func ParseTransform(expr string) *Transform {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil
	}
	t := &Transform{expr: s}

	name, arg, hasArg := strings.Cut(s, ":")
	if !hasArg {
		t.kind = bareTransforms[strings.ToLower(s)]
		return t
	}

	kind, ok := argTransforms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return t
	}
	t.kind = kind
	t.arg = arg

	switch kind {
	case transformReplace:
		from, to, ok := strings.Cut(arg, ":")
		if !ok {
			t.kind = transformNoop
			return t
		}
		t.from, t.to = from, to
	case transformTemplate:
		t.parts = parseTemplate(arg)
	case transformScript:
		t.script = compileScript(arg)
	}
	return t
}

func parseTemplate(body string) []templatePart {
	var parts []templatePart
	last := 0
	for _, m := range templateToken.FindAllStringSubmatchIndex(body, -1) {
		if m[0] > last {
			parts = append(parts, templatePart{literal: body[last:m[0]]})
		}
		field := ""
		if m[2] >= 0 {
			field = body[m[2]:m[3]]
		} else {
			field = body[m[4]:m[5]]
		}
		parts = append(parts, templatePart{field: field})
		last = m[1]
	}
	if last < len(body) {
		parts = append(parts, templatePart{literal: body[last:]})
	}
	return parts
}

// String returns the expression the transform was parsed from.
func (t *Transform) String() string {
	if t == nil {
		return ""
	}
	return t.expr
}

// Apply evaluates the transform on value with record as the interpolation
// scope. Only json, int, float and script can fail.
func (t *Transform) Apply(ctx context.Context, value interface{}, record models.Record) (interface{}, error) {
	if t == nil {
		return value, nil
	}

	switch t.kind {
	case transformTemplate:
		return t.applyTemplate(value, record), nil
	case transformScript:
		return t.script.run(ctx, value, record)
	case transformDefault:
		if value == nil {
			return t.arg, nil
		}
		return value, nil
	}

	if value == nil {
		return nil, nil
	}

	switch t.kind {
	case transformUpper:
		return strings.ToUpper(Stringify(value)), nil
	case transformLower:
		return strings.ToLower(Stringify(value)), nil
	case transformTrim:
		return strings.TrimSpace(Stringify(value)), nil
	case transformStr:
		return Stringify(value), nil
	case transformJSON:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		var out interface{}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("json transform: %w", err)
		}
		return out, nil
	case transformInt:
		return toInt(value)
	case transformFloat:
		return toFloat64(value)
	case transformBool:
		switch strings.ToLower(strings.TrimSpace(Stringify(value))) {
		case "true", "1", "yes":
			return true, nil
		}
		return false, nil
	case transformPrefix:
		return t.arg + Stringify(value), nil
	case transformSuffix:
		return Stringify(value) + t.arg, nil
	case transformReplace:
		return strings.ReplaceAll(Stringify(value), t.from, t.to), nil
	}
	return value, nil
}

func (t *Transform) applyTemplate(value interface{}, record models.Record) interface{} {
	if len(record) == 0 {
		return value
	}

	var b strings.Builder
	for _, p := range t.parts {
		switch {
		case p.field == "":
			b.WriteString(p.literal)
		case p.field == "value":
			b.WriteString(Stringify(value))
		default:
			b.WriteString(Stringify(record[p.field]))
		}
	}
	out := b.String()

	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return out
}

func toInt(v interface{}) (interface{}, error) {
	if !truthy(v) {
		return int64(0), nil
	}
	switch t := v.(type) {
	case bool:
		return int64(1), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int transform: %q is not an integer", t)
		}
		return n, nil
	}
	if f, ok := toFloat(v); ok {
		return int64(math.Trunc(f)), nil
	}
	return nil, fmt.Errorf("int transform: cannot convert %T", v)
}

func toFloat64(v interface{}) (interface{}, error) {
	if !truthy(v) {
		return float64(0), nil
	}
	switch t := v.(type) {
	case bool:
		return float64(1), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("float transform: %q is not a number", t)
		}
		return f, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, fmt.Errorf("float transform: cannot convert %T", v)
}
