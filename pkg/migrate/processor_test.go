package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/rules"
	"github.com/gnana997/migr8/pkg/transform"
	"github.com/gnana997/migr8/pkg/util"
)

const buttonRules = `{
  "migr8rules": [
    {
      "package": "old-lib",
      "component": "Button",
      "importType": "named",
      "importTo": {"importStm": "import { Button } from \"new-lib\";", "importType": "named", "component": "Button"},
      "rules": [
        {"order": 1, "match": [{"variant": "primary"}], "remove": ["variant"],
         "rename": {"size": "dimension"}, "set": {"type": "button"}},
        {"order": 2, "match": [{"kind": "noop"}]}
      ]
    },
    {
      "package": "old-lib",
      "component": "Card",
      "importType": "named",
      "importTo": {"importStm": "TODO: pick target", "importType": "TODO:", "component": "TODO:"},
      "rules": []
    }
  ]
}`

type fixture struct {
	root string
	ctx  *Context
}

func newFixture(t *testing.T, ruleJSON string, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	rs, err := rules.LoadFromBytes([]byte(ruleJSON))
	require.NoError(t, err)

	logger := util.QuietLogger()
	pm := parser.NewParserManager(logger)
	qm := queries.NewQueryManager(pm, logger)
	g, err := graph.NewBuilder(pm, qm, logger).Build(context.Background(), graph.DefaultBuildOptions(root, rs.Targets()))
	require.NoError(t, err)
	t.Cleanup(func() {
		g.Close()
		qm.Close()
		pm.Close()
	})

	return &fixture{
		root: root,
		ctx: &Context{
			Root:    root,
			Rules:   rs,
			Graph:   g,
			Parser:  pm,
			Queries: qm,
			Logger:  logger,
		},
	}
}

func (f *fixture) input(t *testing.T, rel string) FileInput {
	t.Helper()
	agg := NewAggregator(f.ctx).FromGraph()
	for _, in := range agg.Inputs {
		if in.RelPath == rel {
			return in
		}
	}
	t.Fatalf("no input for %s", rel)
	return FileInput{}
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestProcess_EndToEndExample(t *testing.T) {
	f := newFixture(t, buttonRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";

export const App = () => <Button variant="primary" size="large" />;
`,
	})

	res := NewProcessor(f.ctx).Process(context.Background(), f.input(t, "src/app.tsx"))
	require.Equal(t, StateSucceeded, res.State, "errors: %v", res.Errors)

	assert.Equal(t, `import { Button } from "new-lib";

export const App = () => <Button dimension="large" type="button" />;
`, string(res.Output))

	assert.Equal(t, 1, res.Stats.ComponentsChanged)
	assert.Equal(t, 1, res.Stats.PropsRemoved)
	assert.Equal(t, 1, res.Stats.PropsRenamed)
	assert.Equal(t, 1, res.Stats.PropsAdded)
	assert.Equal(t, 1, res.Stats.ImportsAdded)
	assert.Equal(t, 1, res.Stats.ImportsRemoved)
	assert.Equal(t, 0, res.Stats.LineDelta)

	require.Len(t, res.AppliedRules, 1)
	assert.Equal(t, 1, res.AppliedRules[0].RuleOrder)
	assert.Equal(t, 3, res.AppliedRules[0].Line)

	require.Len(t, res.Components, 1)
	changes := res.Components[0].PropChanges
	require.Len(t, changes, 3)
	assert.Equal(t, transform.ChangeRemove, changes[0].Kind)
	assert.Equal(t, transform.ChangeRename, changes[1].Kind)
	assert.Equal(t, transform.ChangeAdd, changes[2].Kind)

	assert.Contains(t, res.Diff, `-import { Button } from "old-lib";`)
	assert.Contains(t, res.Diff, `+import { Button } from "new-lib";`)
	assert.True(t, strings.HasPrefix(res.Diff, "--- a/src/app.tsx"))
}

func TestProcess_IsIdempotent(t *testing.T) {
	src := `import { Button } from "old-lib";

export const App = () => <Button variant="primary" size="large" />;
`
	f := newFixture(t, buttonRules, map[string]string{"src/app.tsx": src})
	first := NewProcessor(f.ctx).Process(context.Background(), f.input(t, "src/app.tsx"))
	require.Equal(t, StateSucceeded, first.State)

	again := newFixture(t, buttonRules, map[string]string{"src/app.tsx": string(first.Output)})
	agg := NewAggregator(again.ctx).FromGraph()
	assert.Empty(t, agg.Inputs, "migrated file no longer uses the old import")
	assert.Empty(t, agg.Invalid)
}

func TestProcess_KeepsImportForUnmigratedUsage(t *testing.T) {
	f := newFixture(t, buttonRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";

export const App = () => (
  <>
    <Button variant="primary" />
    <Button size="sm" />
  </>
);
`,
	})

	res := NewProcessor(f.ctx).Process(context.Background(), f.input(t, "src/app.tsx"))
	require.Equal(t, StateSucceeded, res.State)

	out := string(res.Output)
	assert.Contains(t, out, `import { Button } from "old-lib";`)
	assert.NotContains(t, out, "new-lib", "target name is still bound to the old import")
	assert.Contains(t, out, `<Button type="button" />`)
	assert.Contains(t, out, `<Button size="sm" />`)

	require.Len(t, res.ImportChanges, 1)
	assert.Equal(t, transform.ImportKeep, res.ImportChanges[0].Kind)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, 1, res.Components[0].Migrated)
	assert.Equal(t, 2, res.Components[0].Usages)
}

const iconRules = `{
  "migr8rules": [
    {
      "package": "old-lib",
      "component": "Button",
      "importType": "named",
      "importTo": {"importStm": "import { Button } from \"new-lib\";", "importType": "named", "component": "Button"},
      "rules": [
        {"order": 1, "match": [{"variant": "primary"}], "remove": ["icon", "variant"]},
        {"order": 2, "match": [], "set": {"type": "button"}}
      ]
    }
  ]
}`

func TestProcess_RemovedPropertyDropsNestedUsage(t *testing.T) {
	f := newFixture(t, iconRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";

export const App = () => (
  <>
    <Button variant="primary" icon={<Button kind="x" />} />
    <Button kind="y" />
  </>
);
`,
	})

	res := NewProcessor(f.ctx).Process(context.Background(), f.input(t, "src/app.tsx"))
	require.Equal(t, StateSucceeded, res.State, "errors: %v", res.Errors)

	out := string(res.Output)
	assert.Contains(t, out, "    <Button />\n", "the outer remove wins")
	assert.NotContains(t, out, `kind="x"`)
	assert.Contains(t, out, `<Button kind="y" type="button" />`, "siblings still migrate")
	assert.Contains(t, out, `import { Button } from "new-lib";`)
	assert.NotContains(t, out, "old-lib")

	require.Len(t, res.AppliedRules, 2)
	assert.Equal(t, 2, res.Components[0].Migrated)
	assert.Equal(t, 3, res.Components[0].Usages)

	var dropped bool
	for _, w := range res.Warnings {
		dropped = dropped || strings.Contains(w, "dropped")
	}
	assert.True(t, dropped, "warnings: %v", res.Warnings)
}

func TestProcess_NoopRuleLeavesFileUntouched(t *testing.T) {
	src := `import { Button } from "old-lib";

export const App = () => <Button kind="noop" />;
`
	f := newFixture(t, buttonRules, map[string]string{"src/app.tsx": src})

	res := NewProcessor(f.ctx).Process(context.Background(), f.input(t, "src/app.tsx"))
	require.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, src, string(res.Output))
	assert.False(t, res.Changed())
	assert.Empty(t, res.Diff)
	assert.Empty(t, res.AppliedRules)
	assert.Zero(t, res.Stats.Changes())
}

func TestProcess_FileWithoutTrackedImport(t *testing.T) {
	src := `export const App = () => <div className="x" />;
`
	f := newFixture(t, buttonRules, nil)
	path := filepath.Join(f.root, "plain.tsx")

	res := NewProcessor(f.ctx).Process(context.Background(), FileInput{
		Path:    path,
		RelPath: "plain.tsx",
		Grammar: parser.DetectGrammar(path),
		Source:  []byte(src),
	})
	require.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, src, string(res.Output))
	assert.Empty(t, res.Diff)
	assert.Empty(t, res.ImportChanges)
}

func TestProcess_UnknownSiteIsRecordedAndFileContinues(t *testing.T) {
	f := newFixture(t, buttonRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";

export const App = () => <Button variant="primary" />;
`,
	})
	in := f.input(t, "src/app.tsx")
	bogus := in.Components[0].Usages[0]
	bogus.Site = graph.NodeRef{Start: 1, End: 2, Kind: "jsx_self_closing_element"}
	in.Components[0].Usages = append(in.Components[0].Usages, bogus)

	res := NewProcessor(f.ctx).Process(context.Background(), in)
	assert.Equal(t, StateSucceededWithWarning, res.State)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "transformation", errs.Kind(res.Errors[0]))
	assert.Contains(t, string(res.Output), `<Button type="button" />`)
}

func TestProcess_CancelledContextSkips(t *testing.T) {
	f := newFixture(t, buttonRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";
export const App = () => <Button variant="primary" />;
`,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewProcessor(f.ctx).Process(ctx, f.input(t, "src/app.tsx"))
	assert.Equal(t, StateSkipped, res.State)
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestProcess_ReparsesWhenSourceDiffers(t *testing.T) {
	f := newFixture(t, buttonRules, map[string]string{
		"src/app.tsx": `import { Button } from "old-lib";
export const App = () => <Button variant="primary" />;
`,
	})
	in := f.input(t, "src/app.tsx")
	// Same byte offsets, different text: the retained tree must not be used.
	in.Source = []byte(strings.Replace(string(in.Source), "App", "Foo", 1))

	res := NewProcessor(f.ctx).Process(context.Background(), in)
	require.Equal(t, StateSucceeded, res.State)
	assert.Contains(t, string(res.Output), "export const Foo")
}

func TestFileStateNames(t *testing.T) {
	assert.Equal(t, "succeeded-with-warning", StateSucceededWithWarning.String())
	assert.True(t, StateSkipped.Terminal())
	assert.False(t, StateProcessing.Terminal())
	text, err := StateFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 1, countLines([]byte("a")))
	assert.Equal(t, 1, countLines([]byte("a\n")))
	assert.Equal(t, 2, countLines([]byte("a\nb")))
}

func TestUnifiedDiff(t *testing.T) {
	d, err := UnifiedDiff("x.tsx", []byte("a\nb\n"), []byte("a\nc\n"))
	require.NoError(t, err)
	assert.Contains(t, d, "--- a/x.tsx")
	assert.Contains(t, d, "-b")
	assert.Contains(t, d, "+c")

	d, err = UnifiedDiff("x.tsx", []byte("same"), []byte("same"))
	require.NoError(t, err)
	assert.Empty(t, d)
}
