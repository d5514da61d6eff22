package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/util"
)

func TestProperties_OrderAndJSON(t *testing.T) {
	p := PropertiesOf("size", "large", "disabled", true, "count", 3)
	p.Set("size", StringValue("small"))
	assert.Equal(t, []string{"size", "disabled", "count"}, p.Keys())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"size":{"kind":"string","value":"small"},"disabled":{"kind":"boolean","value":"true"},"count":{"kind":"number","value":"3"}}`,
		string(data))

	back := NewProperties()
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, p.Keys(), back.Keys())
	v, _ := back.Get("disabled")
	assert.Equal(t, BoolValue(true), v)

	p.Delete("disabled")
	assert.Equal(t, []string{"size", "count"}, p.Keys())
	assert.Equal(t, 2, p.Len())
}

func TestProperties_Matchable(t *testing.T) {
	p := PropertiesOf("className", "x", "Style", "y", "variant", "primary", "data-testid", "t")
	assert.Equal(t, []string{"variant"}, p.Matchable().Keys())
	assert.Equal(t, 4, p.Len(), "Matchable leaves the receiver alone")

	var nilProps *Properties
	assert.Equal(t, 0, nilProps.Len())
	assert.False(t, nilProps.Has("x"))
}

func TestPropertyValue_IsScalar(t *testing.T) {
	assert.True(t, StringValue("a").IsScalar())
	assert.True(t, NumberValue("1").IsScalar())
	assert.True(t, BoolValue(false).IsScalar())
	assert.True(t, NullValue().IsScalar())
	assert.False(t, OpaqueValue("arrow_function", "() => x").IsScalar())
}

func TestImportBinding_Component(t *testing.T) {
	assert.Equal(t, "Button", ImportBinding{Kind: ImportNamed, LocalName: "B", ImportedName: "Button"}.Component())
	assert.Equal(t, "Card", ImportBinding{Kind: ImportDefault, LocalName: "Card", ImportedName: "default"}.Component())
	assert.Equal(t, "Dlg", ImportBinding{Kind: ImportNamed, LocalName: "Dlg", ImportedName: "default"}.Component())
	assert.Equal(t, "", ImportBinding{Kind: ImportNamespace, LocalName: "UI", ImportedName: "*"}.Component())
}

func TestTracker(t *testing.T) {
	tr := NewTracker([]Target{{Package: "a", Component: "Button"}, {Package: "b"}})
	assert.True(t, tr.Tracks("a", "Button"))
	assert.False(t, tr.Tracks("a", "Card"))
	assert.True(t, tr.Tracks("b", "Anything"))
	assert.False(t, tr.Tracks("b", ""))
	assert.False(t, tr.TracksPackage("c"))
	assert.Equal(t, []string{"a", "b"}, tr.Packages())
}

func TestTreeCache_EvictsAndClones(t *testing.T) {
	pm := parser.NewParserManager(util.QuietLogger())
	defer pm.Close()
	grammar := parser.DetectGrammar("a.tsx")

	tc, err := NewTreeCache(2, util.QuietLogger())
	require.NoError(t, err)
	defer tc.Close()

	for _, name := range []string{"a", "b", "c"} {
		tree, err := pm.Parse([]byte("const x = <div />;"), grammar)
		require.NoError(t, err)
		tc.Put(name, tree)
	}
	assert.Equal(t, 2, tc.Len())
	assert.Equal(t, 1, tc.Evictions())
	assert.False(t, tc.Contains("a"))

	clone, ok := tc.Checkout("c")
	require.True(t, ok)
	tc.Remove("c")
	assert.Equal(t, "program", clone.RootNode().Kind(), "a clone outlives its cache entry")
	clone.Close()

	_, ok = tc.Checkout("missing")
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"z.tsx": `import { Button, Card } from "old-lib"; export const Z = () => <Card><Button size="sm" /></Card>;`,
		"a.tsx": `import { Button } from "old-lib"; export const A = () => <Button size="lg" variant="x" />;`,
	})
	targets := []Target{{Package: "old-lib"}}
	g, err := newTestBuilder(t).Build(context.Background(), DefaultBuildOptions(root, targets))
	require.NoError(t, err)
	defer g.Close()

	s := Summarize(g)
	assert.Equal(t, []string{"old-lib"}, s.PackageNames())
	assert.Equal(t, []string{"Button", "Card"}, s.Components("old-lib"))
	assert.Equal(t, 3, s.Count())

	buttons := s.Usages("old-lib", "Button")
	require.Len(t, buttons, 2)
	assert.Equal(t, "a.tsx", buttons[0].File)
	assert.Equal(t, "z.tsx", buttons[1].File)
	assert.Equal(t, map[string]int{"size": 2, "variant": 1}, s.PropertyNames("old-lib", "Button"))
}
