package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/util"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	logger := util.QuietLogger()
	pm := parser.NewParserManager(logger)
	qm := queries.NewQueryManager(pm, logger)
	t.Cleanup(func() {
		qm.Close()
		pm.Close()
	})
	return NewBuilder(pm, qm, logger)
}

var buttonTargets = []Target{{Package: "old-lib", Component: "Button"}}

func TestBuild_CollectsUsagesAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/a.tsx": `import { Button } from "old-lib";
export const A = () => <Button variant="primary" />;
`,
		"src/b.jsx": `import { Button } from "old-lib";
export const B = () => <><Button size="sm" /><Button /></>;
`,
		"src/plain.ts": `export const n = 1;`,
		"src/none.tsx": `export const N = () => <div />;`,
		"node_modules/old-lib/index.js": `export const Button = () => null;`,
	})

	g, err := newTestBuilder(t).Build(context.Background(), DefaultBuildOptions(root, buttonTargets))
	require.NoError(t, err)
	defer g.Close()

	files := g.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "src/a.tsx", files[0].RelPath)
	assert.Equal(t, "src/b.jsx", files[1].RelPath)

	stats := g.Stats()
	assert.Equal(t, 3, stats.FilesDiscovered, ".ts and node_modules are not candidates")
	assert.Equal(t, 3, stats.FilesParsed)
	assert.Equal(t, 3, stats.Usages)
	assert.Equal(t, 2, stats.FilesWithUsages)
	assert.Empty(t, g.Warnings())

	usages := g.Usages()
	require.Len(t, usages, 3)
	assert.Equal(t, filepath.Join(root, "src", "a.tsx"), usages[0].FilePath)

	assert.True(t, g.HasTree("src/a.tsx"))
	tree, ok := g.Tree("src/a.tsx")
	require.True(t, ok)
	tree.Close()
	assert.True(t, g.HasTree("src/a.tsx"), "closing a checkout leaves the retained tree alone")
}

func TestBuild_BrokenFileIsWarningNotFailure(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"good.tsx":   `import { Button } from "old-lib"; export const A = () => <Button />;`,
		"broken.tsx": `import { Button } from "old-lib"; export const B = () => <Button ;`,
	})

	g, err := newTestBuilder(t).Build(context.Background(), DefaultBuildOptions(root, buttonTargets))
	require.NoError(t, err)
	defer g.Close()

	require.Len(t, g.Files(), 1)
	warnings := g.Warnings()
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasSuffix(warnings[0].Path, "broken.tsx"))
	var parseErr *errs.ParseError
	assert.ErrorAs(t, warnings[0].Err, &parseErr)
	assert.Equal(t, 1, g.Stats().FilesFailed)
}

func TestBuild_BadRoot(t *testing.T) {
	_, err := newTestBuilder(t).Build(context.Background(),
		DefaultBuildOptions(filepath.Join(t.TempDir(), "missing"), buttonTargets))
	assert.Error(t, err)
}

func TestBuild_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.tsx": `import { Button } from "old-lib"; export const A = () => <Button />;`,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestBuilder(t).Build(ctx, DefaultBuildOptions(root, buttonTargets))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_LargeCodebasePrefilter(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/a.tsx":              `import { Button } from "old-lib"; export const A = () => <Button />;`,
		"src/a.test.tsx":         `import { Button } from "old-lib"; export const T = () => <Button />;`,
		"src/__tests__/b.tsx":    `import { Button } from "old-lib"; export const T = () => <Button />;`,
		"src/util.js":            `export const add = (a, b) => a + b;`,
		"src/other.tsx":          `import { Card } from "other-lib"; export const C = () => <Card />;`,
		"src/stories/demo.jsx":   `import { Button } from "old-lib"; export const D = () => <Button />;`,
		"src/components/big.tsx": `import { Button } from "old-lib"; export const Big = () => <Button />;` + strings.Repeat("\n// pad", 200),
	})

	opts := DefaultBuildOptions(root, buttonTargets)
	opts.LargeCodebase = true
	opts.MaxFileSize = 1024

	g, err := newTestBuilder(t).Build(context.Background(), opts)
	require.NoError(t, err)
	defer g.Close()

	files := g.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "src/a.tsx", files[0].RelPath)
	assert.Equal(t, 6, g.Stats().FilesPrefiltered)
}

func TestPrefilter_Reasons(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"x.test.tsx": `<div/>`,
		"nomarkup.js": `export default 1;`,
		"untracked.tsx": `import { A } from "z"; <A/>`,
		"ok.tsx": `import { A } from "old-lib"; <A/>`,
		"empty.tsx": ``,
	})
	p := Prefilter{Packages: []string{"old-lib"}}

	cases := map[string]string{
		"x.test.tsx":    "test/story/doc file",
		"nomarkup.js":   "no markup",
		"untracked.tsx": "no tracked package",
		"ok.tsx":        "",
		"empty.tsx":     "no markup",
	}
	for rel, want := range cases {
		skip, reason := p.Skip(filepath.Join(root, rel), rel)
		assert.Equal(t, want != "", skip, rel)
		assert.Equal(t, want, reason, rel)
	}
}

func TestDiscoverFiles_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app/a.tsx":        "",
		"app/b.ts":         "",
		"lib/c.jsx":        "",
		"dist/bundle.js":   "",
		"app/nested/d.mjs": "",
	})

	files, err := DiscoverFiles(root, []string{"app/**"}, DefaultExclude)
	require.NoError(t, err)
	var rels []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"app/a.tsx", "app/nested/d.mjs"}, rels)

	_, err = DiscoverFiles(root, []string{"[bad"}, nil)
	assert.Error(t, err)
}

func TestRefresh_UpdatesAndRemoves(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.tsx": `import { Button } from "old-lib"; export const A = () => <Button />;`,
	})
	b := newTestBuilder(t)
	g, err := b.Build(context.Background(), DefaultBuildOptions(root, buttonTargets))
	require.NoError(t, err)
	defer g.Close()

	f, ok := g.File("a.tsx")
	require.True(t, ok)
	id := f.ID

	writeFiles(t, root, map[string]string{
		"a.tsx": `import { Button } from "old-lib"; export const A = () => <><Button /><Button x="1" /></>;`,
	})
	changed, err := b.Refresh(g, filepath.Join(root, "a.tsx"))
	require.NoError(t, err)
	assert.True(t, changed)
	f, ok = g.File("a.tsx")
	require.True(t, ok)
	assert.Equal(t, id, f.ID, "refresh keeps the file's identity")
	assert.Len(t, f.Usages, 2)

	changed, err = b.Refresh(g, "a.tsx")
	require.NoError(t, err)
	assert.False(t, changed, "same bytes are not reparsed")

	writeFiles(t, root, map[string]string{"a.tsx": `export const A = 1;`})
	changed, err = b.Refresh(g, "a.tsx")
	require.NoError(t, err)
	assert.True(t, changed)
	_, ok = g.File("a.tsx")
	assert.False(t, ok)
	assert.False(t, g.HasTree("a.tsx"))
}
