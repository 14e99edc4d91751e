package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docSample = `---
type: adr
status: active
owner: platform-team
---
# Decision Record

Intro paragraph.

## Context

See [parser.go](../internal/parser/parser.go) for the implementation.

## Decision

We chose tree-sitter.
`

func TestParseMarkdownFrontmatterAndSections(t *testing.T) {
	doc, err := ParseMarkdown("docs/0001-parser.md", []byte(docSample))
	require.NoError(t, err)

	assert.Equal(t, "adr", doc.DocumentType)
	assert.Equal(t, "active", doc.Frontmatter["status"])
	assert.Equal(t, "platform-team", doc.CustomFields["owner"])
	_, hasType := doc.CustomFields["type"]
	assert.False(t, hasType, "known frontmatter keys should not leak into custom fields")

	require.Len(t, doc.Headings, 3)
	assert.Equal(t, 1, doc.Headings[0].Level)
	assert.Equal(t, "decision-record", doc.Headings[0].Slug)

	require.Len(t, doc.Links, 1)
	assert.True(t, doc.Links[0].IsInternal)
	assert.True(t, doc.Links[0].IsCodeRef)

	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Context", doc.Sections[0].Heading)
	assert.Equal(t, "Decision", doc.Sections[1].Heading)
}

func TestParseMarkdownNoFrontmatter(t *testing.T) {
	doc, err := ParseMarkdown("README.md", []byte("# Title\n\nbody text\n"))
	require.NoError(t, err)
	assert.Equal(t, "readme", doc.DocumentType)
	assert.Empty(t, doc.Frontmatter)
	require.Len(t, doc.Sections, 1)
}
