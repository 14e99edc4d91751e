package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindParamsEscapesQuotesAndBackslashes(t *testing.T) {
	q := bindParams(`MATCH (f:File {path: $path}) RETURN f`, map[string]any{
		"path": `evil"}) DETACH DELETE (n) MATCH (m {x:"`,
	})
	assert.Contains(t, q, `\"`)
	assert.NotContains(t, q, `DETACH DELETE (n)"})`)
}

func TestLiteralTypes(t *testing.T) {
	assert.Equal(t, "42", literal(42))
	assert.Equal(t, "true", literal(true))
	assert.Equal(t, `"hi"`, literal("hi"))
	assert.Equal(t, "null", literal(nil))
	assert.Equal(t, `["a", "b"]`, literal([]string{"a", "b"}))
}

func TestDecodeGraphResultFlattensRows(t *testing.T) {
	res := []any{
		[]any{"path"},
		[]any{
			[]any{"a.go"},
			[]any{"b.go"},
		},
		[]any{},
	}
	rows := decodeGraphResult(res)
	assert.Len(t, rows, 2)
	assert.Equal(t, "a.go", rows[0]["path"])
}

func TestDecodeGraphResultEmptyOnUnexpectedShape(t *testing.T) {
	assert.Nil(t, decodeGraphResult("not a graph reply"))
	assert.Nil(t, decodeGraphResult([]any{"only one element"}))
}
