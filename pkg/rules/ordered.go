package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Assignment is one name/value pair from a set or props object. Value holds
// the decoded JSON: string, json.Number, bool, nil, map or slice.
type Assignment struct {
	Name  string
	Value any
}

// Assignments is a JSON object decoded with its key order preserved, so set
// operations append attributes in the order the rule author wrote them.
type Assignments struct {
	Entries []Assignment
}

// AssignmentsOf builds Assignments from alternating name/value pairs.
func AssignmentsOf(pairs ...any) *Assignments {
	a := &Assignments{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		a.Entries = append(a.Entries, Assignment{Name: name, Value: pairs[i+1]})
	}
	return a
}

// Len is safe on a nil receiver.
func (a *Assignments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Entries)
}

func (a *Assignments) UnmarshalJSON(data []byte) error {
	om, err := rawObject(data)
	if err != nil {
		return err
	}
	a.Entries = make([]Assignment, 0, om.Len())
	for p := om.Oldest(); p != nil; p = p.Next() {
		v, err := decodeValue(p.Value)
		if err != nil {
			return fmt.Errorf("%q: %w", p.Key, err)
		}
		a.Entries = append(a.Entries, Assignment{Name: p.Key, Value: v})
	}
	return nil
}

func (a *Assignments) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, any]()
	if a != nil {
		for _, e := range a.Entries {
			om.Set(e.Name, e.Value)
		}
	}
	return om.MarshalJSON()
}

// Rename maps one property name to another.
type Rename struct {
	From string
	To   string
}

// Renames is the ordered rename object of a rule.
type Renames struct {
	Pairs []Rename
}

// RenamesOf builds Renames from alternating from/to names.
func RenamesOf(pairs ...string) *Renames {
	r := &Renames{}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Pairs = append(r.Pairs, Rename{From: pairs[i], To: pairs[i+1]})
	}
	return r
}

// Len is safe on a nil receiver.
func (r *Renames) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Pairs)
}

func (r *Renames) UnmarshalJSON(data []byte) error {
	om, err := rawObject(data)
	if err != nil {
		return err
	}
	r.Pairs = make([]Rename, 0, om.Len())
	for p := om.Oldest(); p != nil; p = p.Next() {
		var to string
		if err := json.Unmarshal(p.Value, &to); err != nil {
			return fmt.Errorf("rename %q: target must be a string", p.Key)
		}
		r.Pairs = append(r.Pairs, Rename{From: p.Key, To: to})
	}
	return nil
}

func (r *Renames) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, string]()
	if r != nil {
		for _, p := range r.Pairs {
			om.Set(p.From, p.To)
		}
	}
	return om.MarshalJSON()
}

// rawObject keeps each value undecoded so numbers can go through
// decodeValue instead of collapsing to float64.
func rawObject(data []byte) (*orderedmap.OrderedMap[string, json.RawMessage], error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected object, got %s", truncate(trimmed))
	}
	om := orderedmap.New[string, json.RawMessage]()
	if err := om.UnmarshalJSON(trimmed); err != nil {
		return nil, err
	}
	return om, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func truncate(b []byte) string {
	if len(b) > 16 {
		return string(b[:16]) + "..."
	}
	return string(b)
}
