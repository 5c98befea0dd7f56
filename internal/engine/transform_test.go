package engine

import (
	"context"
	"testing"

	"go-dbsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformApply(t *testing.T) {
	record := models.Record{"title": "Foo", "id": 7, "first": "Ann", "last": "Lee"}

	tests := []struct {
		name  string
		expr  string
		value interface{}
		want  interface{}
	}{
		{name: "Empty Is Identity", expr: "", value: "x", want: "x"},
		{name: "Upper", expr: "upper", value: "abc", want: "ABC"},
		{name: "Keyword Case Insensitive", expr: " UPPER ", value: "abc", want: "ABC"},
		{name: "Lower", expr: "lower", value: "ABC", want: "abc"},
		{name: "Trim", expr: "trim", value: "  a b  ", want: "a b"},
		{name: "Str Float", expr: "str", value: 2.50, want: "2.5"},
		{name: "Int From String", expr: "int", value: " 42 ", want: int64(42)},
		{name: "Int From Float", expr: "int", value: 3.9, want: int64(3)},
		{name: "Int Falsy", expr: "int", value: "", want: int64(0)},
		{name: "Float From String", expr: "float", value: "1.25", want: 1.25},
		{name: "Float Falsy", expr: "float", value: false, want: float64(0)},
		{name: "Bool Yes", expr: "bool", value: "Yes", want: true},
		{name: "Bool One", expr: "bool", value: 1, want: true},
		{name: "Bool Other", expr: "bool", value: "nope", want: false},
		{name: "JSON", expr: "json", value: `{"a":[1,2]}`, want: map[string]interface{}{"a": []interface{}{1.0, 2.0}}},
		{name: "JSON Non String", expr: "json", value: 5, want: 5},
		{name: "Default On Nil", expr: "default:n/a", value: nil, want: "n/a"},
		{name: "Default Keeps Value", expr: "Default:n/a", value: "x", want: "x"},
		{name: "Nil Passes Through", expr: "upper", value: nil, want: nil},
		{name: "Prefix", expr: "prefix:ID-", value: 12, want: "ID-12"},
		{name: "Suffix", expr: "suffix: kg", value: 3, want: "3 kg"},
		{name: "Replace", expr: "replace:-:_", value: "a-b-c", want: "a_b_c"},
		{name: "Replace Missing Target", expr: "replace:-", value: "a-b", want: "a-b"},
		{name: "Unknown Is Noop", expr: "reverse", value: "abc", want: "abc"},
		{name: "Unknown With Arg Is Noop", expr: "pad:5", value: "abc", want: "abc"},
		{name: "Template At Tokens", expr: "template:@title-@id", value: nil, want: "Foo-7"},
		{name: "Template Braces", expr: "template:{{first}} {{last}}", value: "x", want: "Ann Lee"},
		{name: "Template Value", expr: "TEMPLATE:[@value]!", value: "x", want: "[x]!"},
		{name: "Template Missing Field", expr: "template:@nope-@id", value: nil, want: "-7"},
		{name: "Template JSON Object", expr: `template:{"id": @id, "t": "@title"}`, value: nil, want: map[string]interface{}{"id": 7.0, "t": "Foo"}},
		{name: "Template JSON Array", expr: `template:[@id, @id]`, value: nil, want: []interface{}{7.0, 7.0}},
		{name: "Template Bad JSON Stays String", expr: `template:{@title}`, value: nil, want: "{Foo}"},
		{name: "Script", expr: "script:result = value * 2", value: 21, want: int64(42)},
		{name: "Script Record", expr: `script:result = record.first + " " + record.last`, value: nil, want: "Ann Lee"},
		{name: "Script Falls Back To Value", expr: "script:value = value + 1", value: 1, want: int64(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTransform(tt.expr).Apply(context.Background(), tt.value, record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformTemplateWithoutRecord(t *testing.T) {
	got, err := ParseTransform("template:@title").Apply(context.Background(), "v", nil)
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestTransformErrors(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		value interface{}
	}{
		{name: "Bad JSON", expr: "json", value: "{oops"},
		{name: "Bad Int", expr: "int", value: "4.5x"},
		{name: "Bad Float", expr: "float", value: "abc"},
		{name: "Script Compile Error", expr: "script:result = (", value: 1},
		{name: "Script Unresolved Reference", expr: `script:result = value + undefined_thing`, value: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransform(tt.expr).Apply(context.Background(), tt.value, models.Record{"a": 1})
			assert.Error(t, err)
		})
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		a, b interface{}
		want bool
	}{
		{nil, "", true},
		{"", nil, true},
		{nil, nil, true},
		{1, 1.0, true},
		{int64(3), float32(3), true},
		{"a", "b", false},
		{"a", "a", true},
		{nil, 0, false},
		{"", "0", false},
		{7, "7", true},
		{1.5, "1.5", true},
		{true, 1, true},
		{true, int64(1), true},
		{int64(0), false, true},
		{true, 0, false},
		{true, "1", false},
		{true, true, true},
		{map[string]interface{}{"a": 1}, `{"a":1}`, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b), "ValuesEqual(%#v, %#v)", tt.a, tt.b)
	}
}
