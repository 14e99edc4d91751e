package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/contextvault/cv/internal/types"
)

// extractGo walks a Go AST and fills pf.Symbols/Imports/Exports.
// Grounded on the teacher's TreeSitterParser.extractGoSymbols.
func extractGo(root *sitter.Node, path string, src []byte, pf *ParsedFile) {
	text := func(n *sitter.Node) string { return n.Content(src) }

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				name := text(nameNode)
				sym := goFuncSymbol(n, path, src, "", name)
				pf.Symbols = append(pf.Symbols, sym)
				if sym.Visibility == "public" {
					pf.Exports = append(pf.Exports, Export{Name: name})
				}
			}

		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			recvNode := n.ChildByFieldName("receiver")
			if nameNode != nil && recvNode != nil {
				name := text(nameNode)
				receiver := receiverTypeName(recvNode, src)
				sym := goFuncSymbol(n, path, src, receiver, name)
				sym.Kind = types.KindMethod
				sym.QualifiedName = qualifiedName(path, receiver, name)
				pf.Symbols = append(pf.Symbols, sym)
			}

		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				typeNode := spec.ChildByFieldName("type")
				if nameNode == nil {
					continue
				}
				name := text(nameNode)
				kind := types.KindType
				if typeNode != nil {
					switch typeNode.Type() {
					case "struct_type":
						kind = types.KindStruct
					case "interface_type":
						kind = types.KindInterface
					}
				}
				pf.Symbols = append(pf.Symbols, types.Symbol{
					QualifiedName: qualifiedName(path, "", name),
					Name:          name,
					Kind:          kind,
					File:          path,
					StartLine:     int(n.StartPoint().Row) + 1,
					EndLine:       int(n.EndPoint().Row) + 1,
					Signature:     fmt.Sprintf("type %s", name),
					Visibility:    visibilityOf(name),
					Complexity:    1,
				})
				if visibilityOf(name) == "public" {
					pf.Exports = append(pf.Exports, Export{Name: name})
				}
			}

		case "import_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "import_spec" {
					continue
				}
				pathNode := spec.ChildByFieldName("path")
				if pathNode == nil {
					continue
				}
				importPath := strings.Trim(text(pathNode), "\"")
				alias := ""
				if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
					alias = text(nameNode)
				}
				importType := ImportNamespace
				if alias == "_" {
					importType = ImportSideEffect
				}
				pf.Imports = append(pf.Imports, Import{
					Source:     importPath,
					ImportType: importType,
					IsExternal: isExternalGoImport(importPath),
					Line:       int(spec.StartPoint().Row) + 1,
				})
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
}

func goFuncSymbol(n *sitter.Node, path string, src []byte, scope, name string) types.Symbol {
	paramsNode := n.ChildByFieldName("parameters")
	resultNode := n.ChildByFieldName("result")
	sig := fmt.Sprintf("func %s", name)
	if paramsNode != nil {
		sig = fmt.Sprintf("func %s%s", name, paramsNode.Content(src))
	}
	if resultNode != nil {
		sig += " " + resultNode.Content(src)
	}
	body := n.ChildByFieldName("body")
	var calls []types.CallSite
	if body != nil {
		calls = findCalls(body, src, LangGo)
	}
	return types.Symbol{
		QualifiedName: qualifiedName(path, scope, name),
		Name:          name,
		Kind:          types.KindFunction,
		File:          path,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     sig,
		Visibility:    visibilityOf(name),
		Complexity:    1 + len(calls),
		Calls:         calls,
	}
}

func receiverTypeName(recv *sitter.Node, src []byte) string {
	// receiver is a parameter_list with one parameter_declaration whose
	// type is either Identifier or *Identifier (pointer_type).
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		if typeNode.Type() == "pointer_type" {
			if inner := typeNode.NamedChild(0); inner != nil {
				return inner.Content(src)
			}
		}
		return typeNode.Content(src)
	}
	return ""
}

func isExternalGoImport(importPath string) bool {
	if strings.HasPrefix(importPath, ".") {
		return false
	}
	// Standard library imports have no dot before the first slash.
	first := importPath
	if idx := strings.Index(importPath, "/"); idx >= 0 {
		first = importPath[:idx]
	}
	return strings.Contains(first, ".")
}
