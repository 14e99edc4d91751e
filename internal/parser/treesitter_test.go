package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package sample

import (
	"fmt"
	"github.com/acme/widget"
)

type Widget struct {
	Name string
}

func (w *Widget) Greet() string {
	if w.Name != "" {
		return fmt.Sprintf("hi %s", w.Name)
	}
	return helper()
}

func helper() string {
	return widget.Default()
}
`

func TestTreeSitterParserParseGo(t *testing.T) {
	p := NewTreeSitterParser()
	defer p.Close()

	pf, err := p.Parse(context.Background(), "sample.go", []byte(goSample))
	require.NoError(t, err)

	var names []string
	for _, s := range pf.Symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Widget")
	assert.Contains(t, names, "Greet")
	assert.Contains(t, names, "helper")

	foundConditionalCall := false
	for _, s := range pf.Symbols {
		if s.Name == "Greet" {
			for _, c := range s.Calls {
				if c.IsConditional {
					foundConditionalCall = true
				}
			}
		}
	}
	assert.True(t, foundConditionalCall, "call inside if-block should be marked conditional")

	assert.Len(t, pf.Imports, 2)
	var external []string
	for _, imp := range pf.Imports {
		if imp.IsExternal {
			external = append(external, imp.Source)
		}
	}
	assert.Equal(t, []string{"github.com/acme/widget"}, external)

	assert.NotEmpty(t, pf.Chunks)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangGo, DetectLanguage("foo/bar.go"))
	assert.Equal(t, LangPython, DetectLanguage("foo/bar.py"))
	assert.Equal(t, LangTypeScript, DetectLanguage("foo/bar.tsx"))
	assert.Equal(t, LangUnknown, DetectLanguage("foo/bar.txt"))
}

func TestPlainChunkWindowsLongFile(t *testing.T) {
	content := make([]byte, 0)
	for i := 0; i < 200; i++ {
		content = append(content, []byte("line\n")...)
	}
	pf := PlainChunk("notes.txt", content)
	assert.Greater(t, len(pf.Chunks), 1)
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	c := ContentHash([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
