package parser

import (
	"path/filepath"
	"strings"
)

// Language represents a supported programming language for parsing.
type Language int

const (
	// LanguageTypeScript represents TypeScript (.ts, .tsx files)
	LanguageTypeScript Language = iota
	// LanguageJavaScript represents JavaScript (.js, .jsx files)
	LanguageJavaScript
	// LanguageUnknown represents an unsupported language
	LanguageUnknown
)

// String returns the string representation of the language.
func (l Language) String() string {
	switch l {
	case LanguageTypeScript:
		return "typescript"
	case LanguageJavaScript:
		return "javascript"
	default:
		return "unknown"
	}
}

// Grammar selects one tree-sitter grammar: a language plus, for TypeScript,
// whether JSX is enabled. The JavaScript grammar always accepts JSX.
type Grammar struct {
	Lang  Language
	IsTSX bool
}

// String returns "typescript", "tsx" or "javascript".
func (g Grammar) String() string {
	if g.Lang == LanguageTypeScript && g.IsTSX {
		return "tsx"
	}
	return g.Lang.String()
}

// SupportsJSX reports whether files parsed with g can contain markup.
func (g Grammar) SupportsJSX() bool {
	switch g.Lang {
	case LanguageJavaScript:
		return true
	case LanguageTypeScript:
		return g.IsTSX
	default:
		return false
	}
}

// DetectLanguage detects the programming language from a file path.
// Returns LanguageUnknown if the file extension is not recognized.
func DetectLanguage(filePath string) Language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".ts", ".mts", ".cts", ".tsx":
		return LanguageTypeScript
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript
	default:
		return LanguageUnknown
	}
}

// DetectGrammar returns the grammar for filePath.
func DetectGrammar(filePath string) Grammar {
	return Grammar{Lang: DetectLanguage(filePath), IsTSX: IsTSXFile(filePath)}
}

// IsTSXFile checks if a file path represents a TSX file.
// TSX files use the TypeScript grammar with JSX support enabled.
func IsTSXFile(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".tsx"
}

// IsJSXFile checks if a file path represents a JSX file.
func IsJSXFile(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".jsx"
}

// CanContainMarkup reports whether filePath is a source file that may hold
// component usage sites. Plain .ts files cannot.
func CanContainMarkup(filePath string) bool {
	return DetectGrammar(filePath).SupportsJSX()
}

// ParseLanguageString converts a language string to a Language type.
// Returns LanguageUnknown if the string is not recognized.
func ParseLanguageString(lang string) Language {
	switch strings.ToLower(lang) {
	case "typescript", "ts", "tsx":
		return LanguageTypeScript
	case "javascript", "js", "jsx":
		return LanguageJavaScript
	default:
		return LanguageUnknown
	}
}
