package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
)

// Language identifies a source language the parser understands.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
	LangUnknown    Language = "unknown"
)

var extToLang = map[string]Language{
	".go":  LangGo,
	".py":  LangPython,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".rs":  LangRust,
}

// DetectLanguage maps a file extension to a Language.
func DetectLanguage(path string) Language {
	if l, ok := extToLang[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	return LangUnknown
}

// TreeSitterParser parses source files for the five languages cv knows,
// one *sitter.Parser per language, each parse run under mu so concurrent
// sync workers never use a parser instance at the same time. Grounded on
// the teacher's TreeSitterParser.
type TreeSitterParser struct {
	mu      sync.Mutex
	parsers map[Language]*sitter.Parser
}

// NewTreeSitterParser builds parsers for every supported language.
func NewTreeSitterParser() *TreeSitterParser {
	p := &TreeSitterParser{parsers: make(map[Language]*sitter.Parser)}
	newFor := func(lang *sitter.Language) *sitter.Parser {
		sp := sitter.NewParser()
		sp.SetLanguage(lang)
		return sp
	}
	p.parsers[LangGo] = newFor(golang.GetLanguage())
	p.parsers[LangPython] = newFor(python.GetLanguage())
	p.parsers[LangJavaScript] = newFor(javascript.GetLanguage())
	p.parsers[LangTypeScript] = newFor(typescript.GetLanguage())
	p.parsers[LangRust] = newFor(rust.GetLanguage())
	return p
}

// Close releases every pooled sitter.Parser.
func (p *TreeSitterParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sp := range p.parsers {
		sp.Close()
	}
	return nil
}

// SupportsLanguage reports whether lang has a tree-sitter grammar wired.
func (p *TreeSitterParser) SupportsLanguage(lang Language) bool {
	_, ok := p.parsers[lang]
	return ok
}

// Parse implements Parser for source files. Unsupported languages fall
// back to PlainChunk so every tracked file still gets chunks to embed.
func (p *TreeSitterParser) Parse(ctx context.Context, path string, content []byte) (*ParsedFile, error) {
	lang := DetectLanguage(path)
	timer := logging.StartTimer(logging.CategoryParser, "Parse:"+string(lang))
	defer timer.Stop()

	if lang == LangUnknown {
		return PlainChunk(path, content), nil
	}

	p.mu.Lock()
	sp := p.parsers[lang]
	tree, err := sp.ParseCtx(ctx, nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	pf := &ParsedFile{Path: path, Language: string(lang)}
	root := tree.RootNode()
	src := content

	switch lang {
	case LangGo:
		extractGo(root, path, src, pf)
	case LangPython:
		extractPython(root, path, src, pf)
	case LangJavaScript, LangTypeScript:
		extractJSLike(root, path, src, pf)
	case LangRust:
		extractRust(root, path, src, pf)
	}

	pf.Chunks = buildChunks(path, src, pf.Symbols)
	return pf, nil
}

// visibilityOf applies the Go convention (leading-case visibility) when
// the language has no explicit visibility keyword; languages that do
// (pub in Rust, export in JS/TS) set it directly at the call site.
func visibilityOf(name string) string {
	if len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z' {
		return "public"
	}
	return "private"
}

// qualifiedName builds the deterministic "<file>:<name>" (or, inside a
// scope, "<file>:<scope>.<name>") key required
// by spec.md §4.1 — no counters, no addresses.
func qualifiedName(path, scope, name string) string {
	if scope == "" {
		return fmt.Sprintf("%s:%s", path, name)
	}
	return fmt.Sprintf("%s:%s.%s", path, scope, name)
}

// buildChunks slices a file into syntactic ranges for embedding: one
// chunk per top-level symbol plus a residual chunk for anything a
// symbol didn't cover (imports, package-level comments).
func buildChunks(path string, src []byte, symbols []types.Symbol) []Chunk {
	lines := strings.Split(string(src), "\n")
	var chunks []Chunk
	covered := make([]bool, len(lines)+2)

	for _, s := range symbols {
		if s.StartLine <= 0 || s.EndLine < s.StartLine {
			continue
		}
		text := sliceLines(lines, s.StartLine, s.EndLine)
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s:%d:%d", path, s.StartLine, s.EndLine),
			File:       path,
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			Text:       text,
			SymbolName: s.QualifiedName,
		})
		for l := s.StartLine; l <= s.EndLine && l < len(covered); l++ {
			covered[l] = true
		}
	}

	// Residual chunk: leading lines not covered by any symbol (imports,
	// package doc). Only emitted when non-trivial, to avoid indexing
	// blank boilerplate on every file.
	leadEnd := 0
	for leadEnd < len(lines) && (leadEnd >= len(covered) || !covered[leadEnd+1]) {
		leadEnd++
		if leadEnd > 40 {
			break
		}
	}
	if leadEnd > 1 {
		text := sliceLines(lines, 1, leadEnd)
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				ID:        fmt.Sprintf("%s:%d:%d", path, 1, leadEnd),
				File:      path,
				StartLine: 1,
				EndLine:   leadEnd,
				Text:      text,
			})
		}
	}
	return chunks
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// PlainChunk produces a ParsedFile with no symbols, chunked by fixed
// line windows — the fallback path for files without a tree-sitter
// grammar (spec.md §4.1: every tracked file still yields chunks).
func PlainChunk(path string, content []byte) *ParsedFile {
	const windowLines = 60
	lines := strings.Split(string(content), "\n")
	pf := &ParsedFile{Path: path, Language: string(LangUnknown)}
	for start := 1; start <= len(lines); start += windowLines {
		end := start + windowLines - 1
		if end > len(lines) {
			end = len(lines)
		}
		pf.Chunks = append(pf.Chunks, Chunk{
			ID:        fmt.Sprintf("%s:%d:%d", path, start, end),
			File:      path,
			StartLine: start,
			EndLine:   end,
			Text:      sliceLines(lines, start, end),
		})
	}
	return pf
}

// ContentHash computes the sha256 hash used by the delta-sync ledger.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
