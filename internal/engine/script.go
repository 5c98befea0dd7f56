package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// script is a compiled tengo transform. The program sees "value" and
// "record" and answers through "result"; when result is left undefined the
// final value of "value" is used.
type script struct {
	compiled *tengo.Compiled
	err      error
}

func compileScript(src string) *script {
	s := tengo.NewScript([]byte(src))
	s.SetImports(stdlib.GetModuleMap("math", "text", "times", "json", "fmt"))

	for _, name := range []string{"value", "record", "result"} {
		if err := s.Add(name, nil); err != nil {
			return &script{err: err}
		}
	}

	compiled, err := s.Compile()
	if err != nil {
		return &script{err: fmt.Errorf("failed to compile script: %w", err)}
	}
	return &script{compiled: compiled}
}

func (s *script) run(ctx context.Context, value interface{}, record map[string]interface{}) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}

	c := s.compiled.Clone()
	if err := c.Set("value", scriptValue(value)); err != nil {
		return nil, fmt.Errorf("script value: %w", err)
	}
	if err := c.Set("record", scriptValue(map[string]interface{}(record))); err != nil {
		return nil, fmt.Errorf("script record: %w", err)
	}
	if err := c.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}

	if out := c.Get("result").Value(); out != nil {
		return out, nil
	}
	return c.Get("value").Value(), nil
}

// scriptValue narrows v to the types tengo can convert.
func scriptValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, []byte, time.Time:
		return t
	case int:
		return int64(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = scriptValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = scriptValue(item)
		}
		return out
	}
	if f, ok := toFloat(v); ok {
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	}
	return Stringify(v)
}
