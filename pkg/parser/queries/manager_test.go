package queries

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/parser"
)

var tsx = parser.Grammar{Lang: parser.LanguageTypeScript, IsTSX: true}

func setupTest(t *testing.T) (*parser.ParserManager, *QueryManager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	pm := parser.NewParserManager(logger)
	qm := NewQueryManager(pm, logger)
	t.Cleanup(func() {
		qm.Close()
		pm.Close()
	})
	return pm, qm
}

const fixture = `import { Button as Btn } from "old-lib";
import * as UI from "ui-kit";
import "./styles.css";

export const Page = () => (
  <UI.Card>
    <Btn size="lg" />
    <>fragment</>
  </UI.Card>
);
`

func TestQueryExecution_Imports(t *testing.T) {
	pm, qm := setupTest(t)

	tree, err := pm.Parse([]byte(fixture), tsx)
	require.NoError(t, err)
	defer tree.Close()

	matches, err := qm.Run(tree, tsx, QueryTypeImports, []byte(fixture))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	var sources []string
	for _, m := range matches {
		src := m.Capture("import.source")
		require.NotNil(t, src)
		sources = append(sources, src.Text)
		assert.Equal(t, "import_statement", m.Capture("import.statement").Node.Kind())
	}
	assert.Equal(t, []string{"old-lib", "ui-kit", "./styles.css"}, sources)
}

func TestQueryExecution_Elements(t *testing.T) {
	pm, qm := setupTest(t)

	tree, err := pm.Parse([]byte(fixture), tsx)
	require.NoError(t, err)
	defer tree.Close()

	matches, err := qm.Run(tree, tsx, QueryTypeElements, []byte(fixture))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	names := map[string]string{}
	for _, m := range matches {
		name := m.Capture("jsx.name")
		names[name.Text] = m.Capture("jsx.element").Node.Kind()
	}
	assert.Equal(t, "jsx_element", names["UI.Card"])
	assert.Equal(t, "jsx_self_closing_element", names["Btn"])

	card := matches[0].Capture("jsx.name")
	if card.Text != "UI.Card" {
		card = matches[1].Capture("jsx.name")
	}
	assert.Equal(t, 6, card.Line)
	assert.Equal(t, 4, card.Column)
}

func TestQueryExecution_References(t *testing.T) {
	pm, qm := setupTest(t)

	src := []byte(`import { Button } from "old-lib";
const registry = { Button };
const ref = Button;
`)
	tree, err := pm.ParseFile(src, "registry.jsx")
	require.NoError(t, err)
	defer tree.Close()

	matches, err := qm.Run(tree, parser.DetectGrammar("registry.jsx"), QueryTypeReferences, src)
	require.NoError(t, err)

	count := 0
	for _, m := range matches {
		for _, c := range m.Captures {
			if c.Text == "Button" {
				count++
			}
		}
	}
	// import specifier, shorthand property, plain read
	assert.Equal(t, 3, count)
}

func TestGetQuery_CachedPerGrammar(t *testing.T) {
	_, qm := setupTest(t)

	q1, err := qm.GetQuery(tsx, QueryTypeImports)
	require.NoError(t, err)
	q2, err := qm.GetQuery(tsx, QueryTypeImports)
	require.NoError(t, err)
	assert.Same(t, q1, q2)

	plain, err := qm.GetQuery(parser.Grammar{Lang: parser.LanguageTypeScript}, QueryTypeImports)
	require.NoError(t, err)
	assert.NotSame(t, q1, plain)
}

func TestGetQuery_Errors(t *testing.T) {
	_, qm := setupTest(t)

	_, err := qm.GetQuery(parser.Grammar{Lang: parser.LanguageUnknown}, QueryTypeImports)
	assert.Error(t, err)

	_, err = qm.GetQuery(parser.Grammar{Lang: parser.LanguageTypeScript}, QueryTypeElements)
	assert.Error(t, err, "plain TypeScript has no markup nodes")

	_, err = qm.GetQuery(tsx, QueryType(99))
	assert.Error(t, err)
}

func TestExecute_NilInputs(t *testing.T) {
	_, err := Execute(nil, nil, nil)
	assert.Error(t, err)
}

func TestQueryTypeNames(t *testing.T) {
	assert.Equal(t, "elements", QueryTypeElements.String())
	assert.Equal(t, "unknown", QueryType(99).String())
}
