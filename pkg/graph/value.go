package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind tags a PropertyValue.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
	ValueNull
	ValueIdentifier
	ValueMember
	ValueOpaque
)

var valueKindNames = [...]string{"string", "number", "boolean", "null", "identifier", "member", "opaque"}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "unknown"
}

func parseValueKind(s string) (ValueKind, error) {
	for i, name := range valueKindNames {
		if name == s {
			return ValueKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value kind %q", s)
}

// PropertyValue is the reduced form of one attribute value.
//
// Text holds the literal for scalars (unquoted for strings), the dotted or
// bracket path for members, and the raw source text for opaque values.
// NodeKind records the tree-sitter kind an opaque value came from.
type PropertyValue struct {
	Kind     ValueKind
	Text     string
	NodeKind string
}

func StringValue(s string) PropertyValue     { return PropertyValue{Kind: ValueString, Text: s} }
func NumberValue(s string) PropertyValue     { return PropertyValue{Kind: ValueNumber, Text: s} }
func IdentifierValue(s string) PropertyValue { return PropertyValue{Kind: ValueIdentifier, Text: s} }
func MemberValue(s string) PropertyValue     { return PropertyValue{Kind: ValueMember, Text: s} }
func NullValue() PropertyValue               { return PropertyValue{Kind: ValueNull, Text: "null"} }

func BoolValue(b bool) PropertyValue {
	if b {
		return PropertyValue{Kind: ValueBool, Text: "true"}
	}
	return PropertyValue{Kind: ValueBool, Text: "false"}
}

func OpaqueValue(nodeKind, raw string) PropertyValue {
	return PropertyValue{Kind: ValueOpaque, Text: raw, NodeKind: nodeKind}
}

// String is the form used for equality checks in rule matching.
func (v PropertyValue) String() string { return v.Text }

// IsScalar reports whether v is a literal that rules can set back verbatim.
func (v PropertyValue) IsScalar() bool {
	switch v.Kind {
	case ValueString, ValueNumber, ValueBool, ValueNull:
		return true
	}
	return false
}

type valueJSON struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	NodeKind string `json:"node_kind,omitempty"`
}

func (v PropertyValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Kind: v.Kind.String(), Value: v.Text, NodeKind: v.NodeKind})
}

func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := parseValueKind(raw.Kind)
	if err != nil {
		return err
	}
	*v = PropertyValue{Kind: kind, Text: raw.Value, NodeKind: raw.NodeKind}
	return nil
}

// IgnoredProperties never take part in rule matching. The rewriter still
// sees them, so rules can remove or rename them explicitly.
var IgnoredProperties = []string{"style", "id", "className", "key", "data-testid", "testid"}

// IsIgnoredProperty reports whether name is on the ignore list.
func IsIgnoredProperty(name string) bool {
	for _, ignored := range IgnoredProperties {
		if strings.EqualFold(name, ignored) {
			return true
		}
	}
	return false
}

// Properties is an insertion-ordered attribute map.
type Properties struct {
	keys   []string
	values map[string]PropertyValue
}

// NewProperties returns an empty map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]PropertyValue)}
}

// PropertiesOf builds a map from alternating name/value pairs. Test helper
// and fixture builder.
func PropertiesOf(pairs ...any) *Properties {
	p := NewProperties()
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case PropertyValue:
			p.Set(name, v)
		case string:
			p.Set(name, StringValue(v))
		case bool:
			p.Set(name, BoolValue(v))
		default:
			p.Set(name, NumberValue(fmt.Sprint(v)))
		}
	}
	return p
}

// Set inserts or replaces name, keeping its original position on replace.
func (p *Properties) Set(name string, v PropertyValue) {
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = v
}

// Get returns the value for name.
func (p *Properties) Get(name string) (PropertyValue, bool) {
	if p == nil {
		return PropertyValue{}, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name is present.
func (p *Properties) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Delete removes name.
func (p *Properties) Delete(name string) {
	if _, ok := p.values[name]; !ok {
		return
	}
	delete(p.values, name)
	for i, k := range p.keys {
		if k == name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns names in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of entries.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns an independent copy.
func (p *Properties) Clone() *Properties {
	c := NewProperties()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// Matchable returns a copy without ignored properties.
func (p *Properties) Matchable() *Properties {
	c := NewProperties()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		if !IsIgnoredProperty(k) {
			c.Set(k, p.values[k])
		}
	}
	return c
}

// MarshalJSON writes an object with keys in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		for i, k := range p.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(p.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, preserving key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object")
	}
	*p = Properties{values: make(map[string]PropertyValue)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v PropertyValue
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("properties: %s: %w", key, err)
		}
		p.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
