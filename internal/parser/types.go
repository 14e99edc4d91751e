// Package parser turns source and markdown bytes into the structured
// records the rest of cv indexes: symbols, imports, exports, chunks for
// source files; frontmatter, headings, links, sections for markdown.
package parser

import "github.com/contextvault/cv/internal/types"

// ImportType enumerates the shapes an import statement can take.
type ImportType string

const (
	ImportDefault    ImportType = "default"
	ImportNamed      ImportType = "named"
	ImportNamespace  ImportType = "namespace"
	ImportSideEffect ImportType = "side-effect"
)

// Import is one import/require/use statement found in a source file.
type Import struct {
	Source          string     `json:"source"`
	ImportedSymbols []string   `json:"imported_symbols"`
	ImportType      ImportType `json:"import_type"`
	IsExternal      bool       `json:"is_external"`
	Line            int        `json:"line"`
}

// Export describes one named or default export.
type Export struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Chunk is a syntactic range suitable for embedding.
// ID has the stable form "<file>:<startLine>:<endLine>".
type Chunk struct {
	ID         string `json:"id"`
	File       string `json:"file"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Text       string `json:"text"`
	SymbolName string `json:"symbol_name,omitempty"`
}

// ParsedFile is the Parser's output for a source file.
type ParsedFile struct {
	Path     string          `json:"path"`
	Language string          `json:"language"`
	Symbols  []types.Symbol  `json:"symbols"`
	Imports  []Import        `json:"imports"`
	Exports  []Export        `json:"exports"`
	Chunks   []Chunk         `json:"chunks"`
}

// ParsedDocument is the Parser's output for a markdown file.
type ParsedDocument struct {
	Path        string                  `json:"path"`
	Frontmatter map[string]any          `json:"frontmatter"`
	CustomFields map[string]any         `json:"custom_fields"`
	DocumentType string                 `json:"document_type"`
	Headings    []types.Heading         `json:"headings"`
	Links       []types.Link            `json:"links"`
	Sections    []types.DocumentSection `json:"sections"`
}
