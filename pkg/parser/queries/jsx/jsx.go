// Package jsx holds the markup queries used to locate component usage
// sites and identifier references.
package jsx

// ElementQuery matches every element that has a tag name. Fragments (<>)
// have none and are skipped.
//
// Captures:
//   - @jsx.element - jsx_element or jsx_self_closing_element
//   - @jsx.name    - identifier, member_expression or jsx_namespace_name
const ElementQuery = `
(jsx_element
  (jsx_opening_element
    name: (_) @jsx.name)
) @jsx.element

(jsx_self_closing_element
  name: (_) @jsx.name
) @jsx.element
`

// ReferenceQuery matches plain identifiers and object shorthand properties,
// which is every place a binding's local name can be read.
const ReferenceQuery = `
(identifier) @ref.identifier
(shorthand_property_identifier) @ref.shorthand
`
