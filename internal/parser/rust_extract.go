package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/contextvault/cv/internal/types"
)

// extractRust walks a Rust AST. Visibility follows the explicit `pub`
// keyword rather than a naming convention.
func extractRust(root *sitter.Node, path string, src []byte, pf *ParsedFile) {
	text := func(n *sitter.Node) string { return n.Content(src) }

	var walk func(n *sitter.Node, scope string)
	walk = func(n *sitter.Node, scope string) {
		switch n.Type() {
		case "struct_item", "enum_item", "trait_item":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				name := text(nameNode)
				kind := types.KindStruct
				switch n.Type() {
				case "enum_item":
					kind = types.KindType
				case "trait_item":
					kind = types.KindInterface
				}
				pf.Symbols = append(pf.Symbols, types.Symbol{
					QualifiedName: qualifiedName(path, scope, name),
					Name:          name,
					Kind:          kind,
					File:          path,
					StartLine:     int(n.StartPoint().Row) + 1,
					EndLine:       int(n.EndPoint().Row) + 1,
					Signature:     fmt.Sprintf("%s %s", strings.TrimSuffix(n.Type(), "_item"), name),
					Visibility:    rustVisibility(n),
					Complexity:    1,
				})
			}

		case "impl_item":
			typeNode := n.ChildByFieldName("type")
			implScope := scope
			if typeNode != nil {
				implScope = text(typeNode)
			}
			body := n.ChildByFieldName("body")
			if body != nil {
				for i := 0; i < int(body.NamedChildCount()); i++ {
					walk(body.NamedChild(i), implScope)
				}
			}
			return

		case "function_item":
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
				for i := 0; i < int(n.ChildCount()); i++ {
					if n.Child(i).Type() == "async" {
						isAsync = true
						break
					}
				}
				body := n.ChildByFieldName("body")
				var calls []types.CallSite
				if body != nil {
					calls = findCalls(body, src, LangRust)
				}
				pf.Symbols = append(pf.Symbols, types.Symbol{
					QualifiedName: qualifiedName(path, scope, name),
					Name:          name,
					Kind:          kind,
					File:          path,
					StartLine:     int(n.StartPoint().Row) + 1,
					EndLine:       int(n.EndPoint().Row) + 1,
					Signature:     fmt.Sprintf("fn %s%s", name, params),
					Visibility:    rustVisibility(n),
					IsAsync:       isAsync,
					Complexity:    1 + len(calls),
					Calls:         calls,
				})
				return
			}

		case "use_declaration":
			argNode := n.ChildByFieldName("argument")
			if argNode != nil {
				mod := argNode.Content(src)
				pf.Imports = append(pf.Imports, Import{
					Source:     mod,
					ImportType: ImportNamespace,
					IsExternal: !strings.HasPrefix(mod, "crate") && !strings.HasPrefix(mod, "self") && !strings.HasPrefix(mod, "super"),
					Line:       int(n.StartPoint().Row) + 1,
				})
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), scope)
		}
	}
	walk(root, "")
}

func rustVisibility(n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "visibility_modifier" {
			return "public"
		}
	}
	return "private"
}
