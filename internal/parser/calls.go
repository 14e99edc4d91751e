package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/contextvault/cv/internal/types"
)

// conditionalNodeTypes names the per-language node types whose body
// marks any call inside it as is_conditional (spec.md §4.1: calls
// inside try/catch, conditional branches, or loops).
var conditionalNodeTypes = map[Language]map[string]bool{
	LangGo: {
		"if_statement": true, "for_statement": true, "switch_statement": true,
		"type_switch_statement": true, "select_statement": true,
	},
	LangPython: {
		"if_statement": true, "for_statement": true, "while_statement": true,
		"try_statement": true, "except_clause": true,
	},
	LangJavaScript: {
		"if_statement": true, "for_statement": true, "for_in_statement": true,
		"while_statement": true, "try_statement": true, "catch_clause": true,
		"switch_statement": true,
	},
	LangTypeScript: {
		"if_statement": true, "for_statement": true, "for_in_statement": true,
		"while_statement": true, "try_statement": true, "catch_clause": true,
		"switch_statement": true,
	},
	LangRust: {
		"if_expression": true, "match_expression": true, "for_expression": true,
		"while_expression": true, "loop_expression": true,
	},
}

// callNodeType names the tree-sitter node type representing a function
// call in each language.
var callNodeType = map[Language]string{
	LangGo:         "call_expression",
	LangPython:     "call",
	LangJavaScript: "call_expression",
	LangTypeScript: "call_expression",
	LangRust:       "call_expression",
}

// calleeField names the field holding the callee expression within a
// call node.
var calleeField = map[Language]string{
	LangGo:         "function",
	LangPython:     "function",
	LangJavaScript: "function",
	LangTypeScript: "function",
	LangRust:       "function",
}

// findCalls walks the subtree rooted at node collecting every call
// expression in the given language, tagging is_conditional based on
// enclosing control-flow nodes.
func findCalls(node *sitter.Node, src []byte, lang Language) []types.CallSite {
	callType := callNodeType[lang]
	field := calleeField[lang]
	condTypes := conditionalNodeTypes[lang]

	var calls []types.CallSite
	var walk func(n *sitter.Node, conditional bool)
	walk = func(n *sitter.Node, conditional bool) {
		if n == nil {
			return
		}
		nodeConditional := conditional || condTypes[n.Type()]

		if n.Type() == callType {
			if callee := n.ChildByFieldName(field); callee != nil {
				name := calleeText(callee, src)
				if name != "" {
					calls = append(calls, types.CallSite{
						CalleeName:    name,
						Line:          int(n.StartPoint().Row) + 1,
						IsConditional: conditional, // condition established by an *enclosing* node
					})
				}
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), nodeConditional)
		}
	}
	walk(node, false)
	return calls
}

// calleeText extracts a readable callee name from a (possibly member-
// access) expression, e.g. "pkg.Foo" or "obj.method".
func calleeText(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "selector_expression", "member_expression", "attribute", "field_expression", "scoped_identifier":
		return n.Content(src)
	default:
		return n.Content(src)
	}
}
