// Package imports holds the import-declaration query shared by the
// JavaScript, TypeScript and TSX grammars.
package imports

// Query matches every ES module import with a literal source.
//
// Captures:
//   - @import.statement - the whole import_statement
//   - @import.source    - the package name without quotes
//
// Side-effect imports (import "./styles.css") match too; they carry no
// bindings and are ignored by the extractor.
const Query = `
(import_statement
  source: (string (string_fragment) @import.source)
) @import.statement
`
