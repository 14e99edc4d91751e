package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/contextvault/cv/internal/cverr"
)

// Parser turns tracked file bytes into structured records. One Parser
// instance is shared by every delta-sync worker; implementations must be
// safe for concurrent use.
type Parser interface {
	// ParseSource parses a non-markdown tracked file. Returns nil with no
	// error when content fails Precheck (the caller should skip it).
	ParseSource(ctx context.Context, path string, content []byte, maxFileSize int64) (*ParsedFile, error)
	// ParseDocument parses a markdown-family file into frontmatter,
	// headings, links and sections.
	ParseDocument(ctx context.Context, path string, content []byte) (*ParsedDocument, error)
	// IsDocument reports whether path should be routed to ParseDocument
	// given the configured doc glob patterns.
	IsDocument(path string, docPatterns []string) bool
	Close() error
}

// Service implements Parser over a TreeSitterParser, applying Precheck
// before any structural parse and falling back to PlainChunk when a
// language has no grammar wired.
type Service struct {
	ts *TreeSitterParser
}

// NewService builds a Service with parsers for every supported language.
func NewService() *Service {
	return &Service{ts: NewTreeSitterParser()}
}

func (s *Service) Close() error { return s.ts.Close() }

func (s *Service) ParseSource(ctx context.Context, path string, content []byte, maxFileSize int64) (*ParsedFile, error) {
	if !Precheck(content, maxFileSize) {
		return nil, nil
	}
	pf, err := s.ts.Parse(ctx, path, content)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindParse, "ParseSource", err)
	}
	return pf, nil
}

func (s *Service) ParseDocument(ctx context.Context, path string, content []byte) (*ParsedDocument, error) {
	doc, err := ParseMarkdown(path, content)
	if err != nil {
		return nil, cverr.Wrap(cverr.KindParse, "ParseDocument", err)
	}
	return doc, nil
}

// IsDocument matches path against the configured doc glob patterns
// (config.Docs.Patterns, e.g. "**/*.md", "docs/**"); when docPatterns is
// empty it falls back to the file extension.
func (s *Service) IsDocument(path string, docPatterns []string) bool {
	if len(docPatterns) == 0 {
		ext := strings.ToLower(filepath.Ext(path))
		return ext == ".md" || ext == ".mdx"
	}
	for _, pat := range docPatterns {
		if matched, _ := filepath.Match(pat, path); matched {
			return true
		}
		if matched, _ := filepath.Match(pat, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

var _ Parser = (*Service)(nil)

// ValidateLanguageSupport returns an error when path's extension has no
// tree-sitter grammar, meaning the file is indexed through PlainChunk
// with no symbols. File size plays no part, and the delta-sync engine
// does not call it.
func ValidateLanguageSupport(path string) error {
	lang := DetectLanguage(path)
	if lang == LangUnknown {
		return cverr.New(cverr.KindParse, "ValidateLanguageSupport", fmt.Sprintf("no grammar for %s, falling back to plain chunking", path))
	}
	return nil
}
