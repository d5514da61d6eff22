package transform

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/rules"
)

// RenderValue formats a rule value as attribute source text, including the
// quotes or braces: "primary", {true}, {42}, {null}, {{"a":1}}.
func RenderValue(v any) string {
	switch x := v.(type) {
	case string:
		if !strings.ContainsAny(x, "\"\n") {
			return `"` + x + `"`
		}
		return "{" + encodeJSON(x) + "}"
	case nil:
		return "{null}"
	case bool, json.Number, float64, int, int64:
		return "{" + rules.Stringify(x) + "}"
	default:
		return "{" + encodeJSON(x) + "}"
	}
}

// AssignedValue maps a rule value to the PropertyValue an attribute written
// by RenderValue would reduce to. Used to skip sets that change nothing.
func AssignedValue(v any) graph.PropertyValue {
	switch x := v.(type) {
	case string:
		return graph.StringValue(x)
	case nil:
		return graph.NullValue()
	case bool:
		return graph.BoolValue(x)
	case json.Number, float64, int, int64:
		return graph.NumberValue(rules.Stringify(x))
	default:
		return graph.OpaqueValue("object", encodeJSON(x))
	}
}

func sameValue(a, b graph.PropertyValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == graph.ValueNumber {
		return rules.Stringify(json.Number(a.Text)) == rules.Stringify(json.Number(b.Text))
	}
	return a.Text == b.Text
}

func encodeJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}
