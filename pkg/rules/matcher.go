package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/graph"
)

// Negated reports whether the clause is a negative condition.
func (c Clause) Negated() bool {
	for k := range c {
		if strings.HasPrefix(k, "!") {
			return true
		}
	}
	return false
}

// Match reports whether props satisfy clauses.
//
// Positive clauses are OR-ed with AND inside each clause. Every negative
// clause must have none of its keys holding. An empty clause list matches
// anything. A clause value of true or null only requires presence; any other
// scalar is compared by its string form. Object and array values are
// rejected with a MatchConfigError.
func Match(props *graph.Properties, clauses []Clause) (bool, error) {
	if len(clauses) == 0 {
		return true, nil
	}
	for i, c := range clauses {
		if err := validateClause(c); err != nil {
			return false, &errs.MatchConfigError{Clause: i, Reason: err.Error()}
		}
	}

	positiveSeen, positiveOK := false, false
	for _, c := range clauses {
		if c.Negated() {
			for key, want := range c {
				if holds(props, strings.TrimPrefix(key, "!"), want) {
					return false, nil
				}
			}
			continue
		}
		positiveSeen = true
		if positiveOK {
			continue
		}
		all := true
		for key, want := range c {
			if !holds(props, key, want) {
				all = false
				break
			}
		}
		positiveOK = all
	}
	return !positiveSeen || positiveOK, nil
}

// FirstMatch returns the first rule in list order whose clauses match props.
// Rules with malformed clauses are skipped and reported; matching continues
// with the next rule.
func (s *MigrationSpec) FirstMatch(props *graph.Properties) (*MigrationRule, []error) {
	var problems []error
	for i := range s.Rules {
		rule := &s.Rules[i]
		ok, err := Match(props, rule.Match)
		if err != nil {
			var mce *errs.MatchConfigError
			if errors.As(err, &mce) {
				mce.Spec = s.Key()
				mce.RuleOrder = rule.Order
			}
			problems = append(problems, err)
			continue
		}
		if ok {
			return rule, problems
		}
	}
	return nil, problems
}

// GetRuleMatch returns the first matching rule of rules, or nil.
func GetRuleMatch(rules []MigrationRule, props *graph.Properties) (*MigrationRule, []error) {
	spec := MigrationSpec{Rules: rules}
	return spec.FirstMatch(props)
}

func holds(props *graph.Properties, key string, want any) bool {
	got, ok := props.Get(key)
	if !ok {
		return false
	}
	if want == nil || want == true {
		return true
	}
	if got.Kind == graph.ValueNumber {
		return numberText(got.Text) == Stringify(want)
	}
	return got.String() == Stringify(want)
}

// numberText puts a numeric literal in the shortest decimal form Stringify
// gives clause numbers, so {2.0} and {0x2} match 2. Literals that do not
// parse compare as written.
func numberText(lit string) string {
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if n, err := strconv.ParseInt(lit, 0, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return lit
}

func validateClause(c Clause) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimPrefix(k, "!") == "" {
			return fmt.Errorf("empty property name")
		}
		switch c[k].(type) {
		case map[string]any, []any:
			return fmt.Errorf("value of %q is not a scalar", k)
		}
	}
	return nil
}

// Stringify renders a decoded JSON scalar the way property values are
// compared: strings as-is, numbers in shortest decimal form, booleans and
// null as their literals.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
