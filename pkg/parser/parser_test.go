package parser

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSX = `import { Button } from "old-lib";

export function App() {
  return <Button variant="primary">Save</Button>;
}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseTSX(t *testing.T) {
	manager := NewParserManager(quietLogger())
	defer manager.Close()

	tree, err := manager.Parse([]byte(sampleTSX), Grammar{Lang: LanguageTypeScript, IsTSX: true})
	require.NoError(t, err)
	defer tree.Close()

	root := tree.RootNode()
	assert.Equal(t, "program", root.Kind())
	assert.False(t, root.HasError())
	assert.Contains(t, root.ToSexp(), "jsx_element")
}

func TestParseJavaScriptAcceptsJSX(t *testing.T) {
	manager := NewParserManager(quietLogger())
	defer manager.Close()

	tree, err := manager.ParseFile([]byte(`const el = <Card title="x" />;`), "src/card.js")
	require.NoError(t, err)
	defer tree.Close()

	assert.False(t, tree.RootNode().HasError())
	assert.Contains(t, tree.RootNode().ToSexp(), "jsx_self_closing_element")
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	manager := NewParserManager(quietLogger())
	defer manager.Close()

	_, err := manager.ParseFile([]byte("body {}"), "styles.css")
	assert.Error(t, err)

	_, err = manager.Parse([]byte("x"), Grammar{Lang: LanguageUnknown})
	assert.Error(t, err)
}

func TestHasSyntaxErrors(t *testing.T) {
	manager := NewParserManager(quietLogger())
	defer manager.Close()

	broken, err := manager.HasSyntaxErrors([]byte(`const x = <Button variant="a" ;`), "App.tsx")
	require.NoError(t, err)
	assert.True(t, broken)

	broken, err = manager.HasSyntaxErrors([]byte(sampleTSX), "App.tsx")
	require.NoError(t, err)
	assert.False(t, broken)

	stats := manager.GetStats()
	assert.Equal(t, 2, stats.ParsesCalled)
	assert.Equal(t, 1, stats.ParseErrors)
}

func TestGrammarDetection(t *testing.T) {
	tests := []struct {
		path   string
		want   Grammar
		markup bool
	}{
		{"App.tsx", Grammar{Lang: LanguageTypeScript, IsTSX: true}, true},
		{"util.ts", Grammar{Lang: LanguageTypeScript}, false},
		{"view.jsx", Grammar{Lang: LanguageJavaScript}, true},
		{"index.mjs", Grammar{Lang: LanguageJavaScript}, true},
		{"README.md", Grammar{Lang: LanguageUnknown}, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectGrammar(tt.path))
			assert.Equal(t, tt.markup, CanContainMarkup(tt.path))
		})
	}

	assert.Equal(t, "tsx", Grammar{Lang: LanguageTypeScript, IsTSX: true}.String())
	assert.Equal(t, "javascript", Grammar{Lang: LanguageJavaScript}.String())
	assert.Equal(t, LanguageTypeScript, ParseLanguageString("TSX"))
	assert.Equal(t, LanguageUnknown, ParseLanguageString("python"))
}

func TestPoolSizeOverride(t *testing.T) {
	manager := NewParserManagerWithPoolSize(quietLogger(), 1)
	defer manager.Close()

	for i := 0; i < 3; i++ {
		tree, err := manager.ParseFile([]byte(sampleTSX), "App.tsx")
		require.NoError(t, err)
		tree.Close()
	}

	assert.Equal(t, 1, manager.GetStats().ParsersCreated)
}
