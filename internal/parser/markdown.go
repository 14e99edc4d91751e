package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/contextvault/cv/internal/types"
)

var frontmatterDelim = []byte("---")

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// ParseMarkdown splits YAML frontmatter from a markdown body, then walks
// the goldmark AST to collect headings, links and H2-bounded sections.
// Grounded on the documentation-indexing pattern in other_examples (no
// pack repo does markdown frontmatter parsing itself, so this combines
// goldmark with yaml.v3 the way the teacher pairs a parser lib with a
// hand-rolled structural pass over its output).
func ParseMarkdown(path string, content []byte) (*ParsedDocument, error) {
	frontmatter, body, bodyLineOffset := splitFrontmatter(content)

	fm := map[string]any{}
	if len(frontmatter) > 0 {
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("parse frontmatter %s: %w", path, err)
		}
	}

	doc := &ParsedDocument{
		Path:         path,
		Frontmatter:  fm,
		CustomFields: customFields(fm),
		DocumentType: documentTypeOf(fm, path),
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	var headings []types.Heading
	var links []types.Link

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			txt := string(headingText(node, body))
			line := lineOf(body, node)
			headings = append(headings, types.Heading{
				Level: node.Level,
				Text:  txt,
				Line:  line + bodyLineOffset,
				Slug:  slugify(txt),
			})
		case *ast.Link:
			target := string(node.Destination)
			links = append(links, types.Link{
				Target:     target,
				IsInternal: !strings.Contains(target, "://"),
				IsCodeRef:  looksLikeCodeRef(target),
			})
		case *ast.AutoLink:
			target := string(node.URL(body))
			links = append(links, types.Link{
				Target:     target,
				IsInternal: false,
				IsCodeRef:  false,
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown %s: %w", path, err)
	}

	doc.Headings = headings
	doc.Links = links
	doc.Sections = sectionize(path, string(body), headings, bodyLineOffset)
	return doc, nil
}

// splitFrontmatter strips a leading "---\n...\n---\n" YAML block and
// reports how many lines it occupied, so heading line numbers stay
// anchored to the original file.
func splitFrontmatter(content []byte) (frontmatter, body []byte, lineOffset int) {
	if !bytes.HasPrefix(content, frontmatterDelim) {
		return nil, content, 0
	}
	rest := content[len(frontmatterDelim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, content, 0
	}
	frontmatter = bytes.TrimSpace(rest[:idx])
	afterClose := rest[idx+len("\n---"):]
	if nl := bytes.IndexByte(afterClose, '\n'); nl >= 0 {
		body = afterClose[nl+1:]
	} else {
		body = nil
	}
	lineOffset = bytes.Count(content[:len(content)-len(body)], []byte("\n"))
	return frontmatter, body, lineOffset
}

func customFields(fm map[string]any) map[string]any {
	known := map[string]bool{"type": true, "status": true, "title": true}
	out := map[string]any{}
	for k, v := range fm {
		if !known[k] {
			out[k] = v
		}
	}
	return out
}

func documentTypeOf(fm map[string]any, path string) string {
	if t, ok := fm["type"].(string); ok && t != "" {
		return t
	}
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "adr"):
		return "adr"
	case strings.Contains(lower, "readme"):
		return "readme"
	case strings.Contains(lower, "changelog"):
		return "changelog"
	default:
		return "doc"
	}
}

func headingText(n *ast.Heading, src []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
		}
	}
	return buf.Bytes()
}

func lineOf(src []byte, n ast.Node) int {
	lines := n.Lines()
	if lines.Len() == 0 {
		return 0
	}
	seg := lines.At(0)
	return bytes.Count(src[:seg.Start], []byte("\n")) + 1
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func looksLikeCodeRef(target string) bool {
	for _, ext := range []string{".go", ".py", ".js", ".ts", ".rs", ".tsx", ".jsx"} {
		if strings.HasSuffix(target, ext) {
			return true
		}
	}
	return false
}

// sectionize cuts body into ranges at each level-2 heading. It always
// does so; config.Docs.ChunkByHeading is not consulted. A document with
// no H2s yields one section spanning the whole body.
func sectionize(path, body string, headings []types.Heading, lineOffset int) []types.DocumentSection {
	lines := strings.Split(body, "\n")
	var h2s []types.Heading
	for _, h := range headings {
		if h.Level == 2 {
			h2s = append(h2s, h)
		}
	}
	if len(h2s) == 0 {
		return []types.DocumentSection{{
			Heading:   "",
			StartLine: 1 + lineOffset,
			EndLine:   len(lines) + lineOffset,
			Chunks:    chunkSection(path, strings.Join(lines, "\n"), "", 1+lineOffset),
		}}
	}

	var sections []types.DocumentSection
	for i, h := range h2s {
		start := h.Line - lineOffset
		end := len(lines)
		if i+1 < len(h2s) {
			end = h2s[i+1].Line - lineOffset - 1
		}
		text := sliceLines(lines, start, end)
		sections = append(sections, types.DocumentSection{
			Heading:   h.Text,
			StartLine: start + lineOffset,
			EndLine:   end + lineOffset,
			Chunks:    chunkSection(path, text, h.Text, start+lineOffset),
		})
	}
	return sections
}

func chunkSection(path, text, heading string, startLine int) []types.DocumentChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []types.DocumentChunk{{
		ID:      fmt.Sprintf("%s:%s:%d", path, slugify(heading), startLine),
		Text:    text,
		Section: heading,
	}}
}
