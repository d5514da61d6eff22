package graph

import (
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Attribute is one entry of an element's attribute list as it appears in
// source. Nodes borrow from the tree they were read from.
type Attribute struct {
	Name      string
	Value     PropertyValue
	Node      *ts.Node // jsx_attribute, or the jsx_expression of a spread
	NameNode  *ts.Node
	ValueNode *ts.Node // nil for boolean shorthand
	Spread    bool
}

// Shorthand reports whether the attribute was written without a value.
func (a Attribute) Shorthand() bool { return !a.Spread && a.ValueNode == nil }

// OpeningElement returns the node that carries the tag name and attributes:
// the element itself when self-closing, its jsx_opening_element otherwise.
func OpeningElement(element *ts.Node) *ts.Node {
	if element == nil {
		return nil
	}
	if element.Kind() == "jsx_self_closing_element" {
		return element
	}
	return childOfKind(element, "jsx_opening_element")
}

// ClosingElement returns the jsx_closing_element of element, or nil.
func ClosingElement(element *ts.Node) *ts.Node {
	if element == nil || element.Kind() != "jsx_element" {
		return nil
	}
	return childOfKind(element, "jsx_closing_element")
}

// TagNameNode returns the name node of an opening, closing or self-closing
// element.
func TagNameNode(node *ts.Node) *ts.Node {
	if node == nil {
		return nil
	}
	return node.ChildByFieldName("name")
}

// ReadAttributes returns the attributes of an opening or self-closing
// element in source order.
func ReadAttributes(opening *ts.Node, source []byte) []Attribute {
	var attrs []Attribute
	if opening == nil {
		return attrs
	}
	for i := uint(0); i < opening.ChildCount(); i++ {
		child := opening.Child(i)
		switch child.Kind() {
		case "jsx_attribute":
			if attr, ok := readAttribute(child, source); ok {
				attrs = append(attrs, attr)
			}
		case "jsx_expression":
			// {...props}
			attrs = append(attrs, Attribute{Name: "...", Node: child, Spread: true,
				Value: OpaqueValue("spread_element", child.Utf8Text(source))})
		}
	}
	return attrs
}

func readAttribute(node *ts.Node, source []byte) (Attribute, bool) {
	attr := Attribute{Node: node}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "property_identifier", "jsx_namespace_name", "identifier":
			if attr.NameNode == nil {
				attr.NameNode = child
				attr.Name = child.Utf8Text(source)
			}
		case "=":
		default:
			if attr.NameNode != nil && child.IsNamed() && attr.ValueNode == nil {
				attr.ValueNode = child
			}
		}
	}
	if attr.NameNode == nil {
		return attr, false
	}

	if attr.ValueNode == nil {
		// <Button disabled>
		attr.Value = BoolValue(true)
	} else {
		attr.Value = ReduceValue(attr.ValueNode, source)
	}
	return attr, true
}

// ReduceValue maps an attribute value node to a PropertyValue. Anything that
// is not a literal, identifier or member path becomes Opaque.
func ReduceValue(node *ts.Node, source []byte) PropertyValue {
	switch node.Kind() {
	case "string":
		return StringValue(stringContent(node, source))
	case "jsx_expression":
		inner := expressionBody(node)
		if inner == nil {
			return OpaqueValue(node.Kind(), node.Utf8Text(source))
		}
		return reduceExpression(inner, source)
	default:
		return OpaqueValue(node.Kind(), node.Utf8Text(source))
	}
}

func reduceExpression(node *ts.Node, source []byte) PropertyValue {
	text := node.Utf8Text(source)
	switch node.Kind() {
	case "string":
		return StringValue(stringContent(node, source))
	case "number":
		return NumberValue(text)
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	case "null":
		return NullValue()
	case "identifier", "undefined":
		return IdentifierValue(text)
	case "member_expression":
		return MemberValue(compact(text))
	case "subscript_expression":
		if obj := node.ChildByFieldName("object"); obj != nil {
			switch obj.Kind() {
			case "identifier", "member_expression", "subscript_expression", "this":
				return MemberValue(compact(text))
			}
		}
	case "unary_expression":
		arg := node.ChildByFieldName("argument")
		op := node.ChildByFieldName("operator")
		if arg != nil && op != nil && arg.Kind() == "number" {
			if o := op.Utf8Text(source); o == "-" || o == "+" {
				return NumberValue(compact(text))
			}
		}
	case "parenthesized_expression":
		if inner := firstNamedNonComment(node); inner != nil {
			return reduceExpression(inner, source)
		}
	}
	return OpaqueValue(node.Kind(), text)
}

// expressionBody returns the expression inside {...}, skipping comments.
func expressionBody(expr *ts.Node) *ts.Node {
	return firstNamedNonComment(expr)
}

func firstNamedNonComment(node *ts.Node) *ts.Node {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "comment" {
			return child
		}
	}
	return nil
}

// stringContent returns the text between the quotes of a string node.
func stringContent(node *ts.Node, source []byte) string {
	text := node.Utf8Text(source)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

func childOfKind(node *ts.Node, kind string) *ts.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

func hasChildOfKind(node *ts.Node, kind string) bool {
	return childOfKind(node, kind) != nil
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// FindNode locates the node ref points at in a tree parsed from the same
// text. Returns nil when no node with that exact span and kind exists.
func FindNode(root *ts.Node, ref NodeRef) *ts.Node {
	if root == nil || ref.End < ref.Start {
		return nil
	}
	n := root.DescendantForByteRange(ref.Start, ref.End)
	for n != nil {
		if n.StartByte() == ref.Start && n.EndByte() == ref.End && (ref.Kind == "" || n.Kind() == ref.Kind) {
			return n
		}
		if n.StartByte() < ref.Start || n.EndByte() > ref.End {
			return nil
		}
		n = n.Parent()
	}
	return nil
}

// RefOf converts a node to a NodeRef in file.
func RefOf(file FileID, node *ts.Node) NodeRef {
	return NodeRef{File: file, Start: node.StartByte(), End: node.EndByte(), Kind: node.Kind()}
}
