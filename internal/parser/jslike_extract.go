package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/contextvault/cv/internal/types"
)

// extractJSLike walks a JavaScript or TypeScript AST. Both grammars share
// enough node shapes (function_declaration, class_declaration, method_
// definition, import/export statements) that one extractor covers both;
// lang is threaded through only for findCalls' node-type tables.
func extractJSLike(root *sitter.Node, path string, src []byte, pf *ParsedFile) {
	lang := LangJavaScript
	if strings.HasSuffix(path, ".ts") || strings.HasSuffix(path, ".tsx") {
		lang = LangTypeScript
	}
	text := func(n *sitter.Node) string { return n.Content(src) }

	var walk func(n *sitter.Node, scope string)
	walk = func(n *sitter.Node, scope string) {
		switch n.Type() {
		case "class_declaration":
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
					Visibility:    jsExportVisibility(n),
					Complexity:    1,
				})
				if jsExportVisibility(n) == "public" {
					pf.Exports = append(pf.Exports, Export{Name: name})
				}
				body := n.ChildByFieldName("body")
				if body != nil {
					for i := 0; i < int(body.NamedChildCount()); i++ {
						walk(body.NamedChild(i), name)
					}
				}
				return
			}

		case "function_declaration", "generator_function_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				name := text(nameNode)
				pf.Symbols = append(pf.Symbols, jsFuncSymbol(n, path, src, scope, name, lang))
				if jsExportVisibility(n) == "public" {
					pf.Exports = append(pf.Exports, Export{Name: name})
				}
				return
			}

		case "method_definition":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil && scope != "" {
				name := text(nameNode)
				sym := jsFuncSymbol(n, path, src, scope, name, lang)
				sym.Kind = types.KindMethod
				sym.QualifiedName = qualifiedName(path, scope, name)
				pf.Symbols = append(pf.Symbols, sym)
				return
			}

		case "lexical_declaration", "variable_declaration":
			// Arrow-function assignments: const foo = (...) => {...}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				decl := n.NamedChild(i)
				if decl.Type() != "variable_declarator" {
					continue
				}
				nameNode := decl.ChildByFieldName("name")
				valueNode := decl.ChildByFieldName("value")
				if nameNode == nil || valueNode == nil {
					continue
				}
				if valueNode.Type() != "arrow_function" && valueNode.Type() != "function" {
					continue
				}
				name := text(nameNode)
				sym := jsFuncSymbol(valueNode, path, src, scope, name, lang)
				sym.StartLine = int(n.StartPoint().Row) + 1
				sym.Visibility = jsExportVisibility(n)
				pf.Symbols = append(pf.Symbols, sym)
				if sym.Visibility == "public" {
					pf.Exports = append(pf.Exports, Export{Name: name})
				}
			}

		case "import_statement":
			src_ := n.ChildByFieldName("source")
			if src_ == nil {
				break
			}
			mod := strings.Trim(text(src_), "\"'")
			importType := ImportNamespace
			var names []string
			clause := n.Child(1)
			if clause != nil && clause.Type() == "import_clause" {
				for i := 0; i < int(clause.NamedChildCount()); i++ {
					part := clause.NamedChild(i)
					switch part.Type() {
					case "identifier":
						importType = ImportDefault
						names = append(names, text(part))
					case "named_imports":
						importType = ImportNamed
						for j := 0; j < int(part.NamedChildCount()); j++ {
							spec := part.NamedChild(j)
							names = append(names, spec.Content(src))
						}
					case "namespace_import":
						importType = ImportNamespace
						names = append(names, part.Content(src))
					}
				}
			} else {
				importType = ImportSideEffect
			}
			pf.Imports = append(pf.Imports, Import{
				Source:          mod,
				ImportedSymbols: names,
				ImportType:      importType,
				IsExternal:      !strings.HasPrefix(mod, "."),
				Line:            int(n.StartPoint().Row) + 1,
			})

		case "export_statement":
			// Recurse into the exported declaration so the symbol itself
			// still gets recorded; visibility derives from export presence.
			for i := 0; i < int(n.NamedChildCount()); i++ {
				walk(n.NamedChild(i), scope)
			}
			return
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), scope)
		}
	}
	walk(root, "")
}

func jsFuncSymbol(n *sitter.Node, path string, src []byte, scope, name string, lang Language) types.Symbol {
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
		calls = findCalls(body, src, lang)
	}
	return types.Symbol{
		QualifiedName: qualifiedName(path, scope, name),
		Name:          name,
		Kind:          types.KindFunction,
		File:          path,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     fmt.Sprintf("function %s%s", name, params),
		Visibility:    jsExportVisibility(n),
		IsAsync:       isAsync,
		Complexity:    1 + len(calls),
		Calls:         calls,
	}
}

// jsExportVisibility reports "public" when n or its immediate parent is
// wrapped in an export_statement, "private" otherwise — JS/TS has no
// case-convention visibility so export is the only signal.
func jsExportVisibility(n *sitter.Node) string {
	p := n.Parent()
	for p != nil {
		if p.Type() == "export_statement" {
			return "public"
		}
		// lexical_declaration/variable_declaration sit between the arrow
		// function and its export_statement wrapper.
		if p.Type() != "lexical_declaration" && p.Type() != "variable_declaration" && p.Type() != "variable_declarator" {
			break
		}
		p = p.Parent()
	}
	return "private"
}
