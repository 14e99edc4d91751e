package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/contextvault/cv/internal/types"
)

// extractPython walks a Python AST and fills pf.Symbols/Imports.
// Visibility follows the underscore-prefix convention (no leading
// underscore = public).
func extractPython(root *sitter.Node, path string, src []byte, pf *ParsedFile) {
	text := func(n *sitter.Node) string { return n.Content(src) }

	var walk func(n *sitter.Node, scope string)
	walk = func(n *sitter.Node, scope string) {
		switch n.Type() {
		case "class_definition":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				name := text(nameNode)
				pf.Symbols = append(pf.Symbols, types.Symbol{
					QualifiedName: qualifiedName(path, scope, name),
					Name:          name,
					Kind:          types.KindClass,
					File:          path,
					StartLine:     int(n.StartPoint().Row) + 1,
					EndLine:       int(n.EndPoint().Row) + 1,
					Signature:     fmt.Sprintf("class %s", name),
					Visibility:    pyVisibility(name),
					Docstring:     pyDocstring(n, src),
					Complexity:    1,
				})
				body := n.ChildByFieldName("body")
				if body != nil {
					for i := 0; i < int(body.ChildCount()); i++ {
						walk(body.Child(i), name)
					}
				}
				return
			}

		case "function_definition":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				name := text(nameNode)
				kind := types.KindFunction
				if scope != "" {
					kind = types.KindMethod
				}
				params := ""
				if p := n.ChildByFieldName("parameters"); p != nil {
					params = p.Content(src)
				}
				isAsync := false
				if n.Child(0) != nil && n.Child(0).Type() == "async" {
					isAsync = true
				}
				body := n.ChildByFieldName("body")
				var calls []types.CallSite
				if body != nil {
					calls = findCalls(body, src, LangPython)
				}
				pf.Symbols = append(pf.Symbols, types.Symbol{
					QualifiedName: qualifiedName(path, scope, name),
					Name:          name,
					Kind:          kind,
					File:          path,
					StartLine:     int(n.StartPoint().Row) + 1,
					EndLine:       int(n.EndPoint().Row) + 1,
					Signature:     fmt.Sprintf("def %s%s", name, params),
					Visibility:    pyVisibility(name),
					IsAsync:       isAsync,
					Docstring:     pyDocstring(n, src),
					Complexity:    1 + len(calls),
					Calls:         calls,
				})
				return
			}

		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
					mod := moduleNameOf(child, src)
					pf.Imports = append(pf.Imports, Import{
						Source:     mod,
						ImportType: ImportNamespace,
						IsExternal: !strings.HasPrefix(mod, "."),
						Line:       int(n.StartPoint().Row) + 1,
					})
				}
			}

		case "import_from_statement":
			moduleNode := n.ChildByFieldName("module_name")
			mod := ""
			if moduleNode != nil {
				mod = text(moduleNode)
			}
			var names []string
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "dotted_name" && child != moduleNode {
					names = append(names, text(child))
				}
			}
			pf.Imports = append(pf.Imports, Import{
				Source:          mod,
				ImportedSymbols: names,
				ImportType:      ImportNamed,
				IsExternal:      !strings.HasPrefix(mod, "."),
				Line:            int(n.StartPoint().Row) + 1,
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), scope)
		}
	}
	walk(root, "")
}

func pyVisibility(name string) string {
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	return "public"
}

// pyDocstring extracts a leading string-expression statement from a
// function/class body, Python's docstring convention.
func pyDocstring(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() == "expression_statement" && first.NamedChildCount() > 0 {
		if str := first.NamedChild(0); str.Type() == "string" {
			return strings.Trim(str.Content(src), "\"'")
		}
	}
	return ""
}

func moduleNameOf(n *sitter.Node, src []byte) string {
	if n.Type() == "aliased_import" {
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return n.Content(src)
}
