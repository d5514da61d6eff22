package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/util"
)

func extract(t *testing.T, path, code string, targets ...Target) *File {
	t.Helper()
	logger := util.QuietLogger()
	pm := parser.NewParserManager(logger)
	qm := queries.NewQueryManager(pm, logger)
	t.Cleanup(func() {
		qm.Close()
		pm.Close()
	})

	file := &File{ID: 1, Path: path, RelPath: path, Grammar: parser.DetectGrammar(path), Source: []byte(code)}
	tree, err := pm.Parse(file.Source, file.Grammar)
	require.NoError(t, err)
	defer tree.Close()

	require.NoError(t, NewExtractor(qm, logger).Extract(tree, file, NewTracker(targets)))
	return file
}

func TestExtract_NamedImportAndUsage(t *testing.T) {
	code := `import { Button, Icon } from "old-lib";
import { Button as Other } from "other-lib";

export const App = () => (
  <div>
    <Button variant="primary" size="large" className="cta" />
    <Other variant="x" />
  </div>
);
`
	file := extract(t, "App.tsx", code, Target{Package: "old-lib", Component: "Button"})

	require.Len(t, file.Bindings, 1)
	b := file.Bindings[0]
	assert.Equal(t, ImportNamed, b.Kind)
	assert.Equal(t, "Button", b.LocalName)
	assert.Equal(t, "Button", b.ImportedName)
	assert.Equal(t, "import_specifier", b.Site.Kind)
	assert.Equal(t, "import_statement", b.Statement.Kind)

	require.Len(t, file.Usages, 1)
	u := file.Usages[0]
	assert.Equal(t, "Button", u.Component)
	assert.Equal(t, "old-lib", u.Package)
	assert.Equal(t, Position{Line: 6, Column: 5}, u.Position)
	assert.Equal(t, []string{"variant", "size"}, u.Properties.Keys(), "className is ignored")
	v, _ := u.Properties.Get("size")
	assert.Equal(t, StringValue("large"), v)
	assert.Equal(t, "jsx_self_closing_element", u.Site.Kind)
}

func TestExtract_AliasDefaultAndNamespace(t *testing.T) {
	code := `import Card from "old-lib/card";
import { Button as Btn } from "old-lib";
import * as UI from "old-lib";

export function Page() {
  return (
    <Card>
      <Btn disabled />
      <UI.Button onClick={() => save()} count={3} mode={Mode.Dark} label={null} />
      <UI.Other />
    </Card>
  );
}
`
	file := extract(t, "Page.jsx", code,
		Target{Package: "old-lib", Component: "Button"},
		Target{Package: "old-lib/card", Component: "Card"},
	)

	require.Len(t, file.Bindings, 3)
	assert.Equal(t, ImportDefault, file.Bindings[0].Kind)
	assert.Equal(t, "Card", file.Bindings[0].Component())
	assert.Equal(t, "Btn", file.Bindings[1].LocalName)
	assert.Equal(t, ImportNamespace, file.Bindings[2].Kind)

	require.Len(t, file.Usages, 3)
	assert.Equal(t, "Card", file.Usages[0].Component)
	assert.Equal(t, "jsx_element", file.Usages[0].Site.Kind)

	btn := file.Usages[1]
	assert.Equal(t, "Button", btn.Component)
	assert.Equal(t, "Btn", btn.Tag)
	disabled, ok := btn.Properties.Get("disabled")
	require.True(t, ok)
	assert.Equal(t, BoolValue(true), disabled)

	ns := file.Usages[2]
	assert.Equal(t, "UI.Button", ns.Tag)
	assert.Equal(t, 2, ns.Binding)
	onClick, _ := ns.Properties.Get("onClick")
	assert.Equal(t, ValueOpaque, onClick.Kind)
	assert.Equal(t, "arrow_function", onClick.NodeKind)
	count, _ := ns.Properties.Get("count")
	assert.Equal(t, NumberValue("3"), count)
	mode, _ := ns.Properties.Get("mode")
	assert.Equal(t, MemberValue("Mode.Dark"), mode)
	label, _ := ns.Properties.Get("label")
	assert.Equal(t, ValueNull, label.Kind)
}

func TestExtract_TypeOnlyAndUntrackedIgnored(t *testing.T) {
	code := `import type { ButtonProps } from "old-lib";
import { type Size, Button } from "old-lib";
import { Button as NewButton } from "new-lib";

const a = <NewButton />;
const b = <Button {...rest} kind="ghost" />;
`
	file := extract(t, "types.tsx", code, Target{Package: "old-lib"})

	require.Len(t, file.Bindings, 1)
	assert.Equal(t, "Button", file.Bindings[0].LocalName)

	require.Len(t, file.Usages, 1)
	assert.Equal(t, []string{"kind"}, file.Usages[0].Properties.Keys(), "spread never enters the map")
}

func TestExtract_NoTrackedImport(t *testing.T) {
	file := extract(t, "plain.tsx", `export const X = () => <Button variant="primary" />;`,
		Target{Package: "old-lib", Component: "Button"})

	assert.Empty(t, file.Bindings)
	assert.Empty(t, file.Usages)
}

func TestFindNode(t *testing.T) {
	code := `import { Button } from "old-lib";
const x = <Button size="sm">go</Button>;
`
	logger := util.QuietLogger()
	pm := parser.NewParserManager(logger)
	defer pm.Close()
	qm := queries.NewQueryManager(pm, logger)
	defer qm.Close()

	file := &File{ID: 3, Path: "x.tsx", Grammar: parser.DetectGrammar("x.tsx"), Source: []byte(code)}
	tree, err := pm.Parse(file.Source, file.Grammar)
	require.NoError(t, err)
	require.NoError(t, NewExtractor(qm, logger).Extract(tree, file, NewTracker([]Target{{Package: "old-lib"}})))
	tree.Close()

	// Resolve the recorded refs against a fresh parse of the same text.
	fresh, err := pm.Parse(file.Source, file.Grammar)
	require.NoError(t, err)
	defer fresh.Close()

	elem := FindNode(fresh.RootNode(), file.Usages[0].Site)
	require.NotNil(t, elem)
	assert.Equal(t, `<Button size="sm">go</Button>`, elem.Utf8Text(file.Source))

	spec := FindNode(fresh.RootNode(), file.Bindings[0].Site)
	require.NotNil(t, spec)
	assert.Equal(t, "import_specifier", spec.Kind())

	assert.Nil(t, FindNode(fresh.RootNode(), NodeRef{Start: 0, End: 3, Kind: "jsx_element"}))
}
