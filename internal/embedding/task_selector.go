package embedding

import (
	"strings"

	"github.com/contextvault/cv/internal/logging"
)

// ContentType classifies what's being embedded, so GenAI's task_type
// hint can be tuned per content shape.
type ContentType string

const (
	ContentTypeCode           ContentType = "code"
	ContentTypeDocumentation  ContentType = "documentation"
	ContentTypeConversation   ContentType = "conversation"
	ContentTypeKnowledgeAtom  ContentType = "knowledge_atom"
	ContentTypeQuery          ContentType = "query"
	ContentTypeFact           ContentType = "fact"
	ContentTypeQuestion       ContentType = "question"
	ContentTypeAnswer         ContentType = "answer"
	ContentTypeClassification ContentType = "classification"
	ContentTypeClustering     ContentType = "clustering"
)

// SelectTaskType picks the GenAI task_type best suited to contentType.
// Ollama ignores this; it only affects the genai provider.
func SelectTaskType(contentType ContentType, isQuery bool) string {
	var taskType string
	switch contentType {
	case ContentTypeCode:
		if isQuery {
			taskType = "CODE_RETRIEVAL_QUERY"
		} else {
			taskType = "RETRIEVAL_DOCUMENT"
		}
	case ContentTypeQuery:
		taskType = "RETRIEVAL_QUERY"
	case ContentTypeQuestion:
		taskType = "QUESTION_ANSWERING"
	case ContentTypeAnswer, ContentTypeDocumentation:
		taskType = "RETRIEVAL_DOCUMENT"
	case ContentTypeFact:
		taskType = "FACT_VERIFICATION"
	case ContentTypeClassification:
		taskType = "CLASSIFICATION"
	case ContentTypeClustering:
		taskType = "CLUSTERING"
	case ContentTypeConversation, ContentTypeKnowledgeAtom:
		taskType = "SEMANTIC_SIMILARITY"
	default:
		taskType = "SEMANTIC_SIMILARITY"
	}
	return taskType
}

// DetectContentType guesses content type from text and optional metadata
// hints, falling back to keyword heuristics.
func DetectContentType(text string, metadata map[string]interface{}) ContentType {
	originalText := text
	text = strings.ToLower(text)

	if meta, ok := metadata["content_type"].(string); ok {
		return ContentType(meta)
	}
	if metaType, ok := metadata["type"].(string); ok {
		switch metaType {
		case "user_input", "query":
			return ContentTypeQuery
		case "code", "source_code":
			return ContentTypeCode
		case "documentation", "docs":
			return ContentTypeDocumentation
		case "knowledge_atom", "fact":
			return ContentTypeKnowledgeAtom
		}
	}

	codeIndicators := []string{
		"func ", "function ", "class ", "def ", "import ", "package ",
		"const ", "var ", "let ", "interface ", "struct ", "type ",
		"{", "}", "=>", "->", "//", "/*", "*/", "public ", "private ",
	}
	codeScore := 0
	for _, indicator := range codeIndicators {
		if strings.Contains(text, indicator) {
			codeScore++
		}
	}
	if codeScore >= 3 {
		return ContentTypeCode
	}

	if strings.HasPrefix(text, "what ") || strings.HasPrefix(text, "how ") ||
		strings.HasPrefix(text, "why ") || strings.HasPrefix(text, "when ") ||
		strings.HasPrefix(text, "where ") || strings.HasSuffix(text, "?") {
		return ContentTypeQuestion
	}

	if len(originalText) < 100 && (strings.Contains(text, "please") || strings.Contains(text, "can you") || strings.Contains(text, "i want")) {
		return ContentTypeConversation
	}

	docIndicators := []string{"# ", "## ", "### ", "/**", "* @param", "* @return", "readme", "documentation"}
	for _, indicator := range docIndicators {
		if strings.Contains(text, indicator) {
			return ContentTypeDocumentation
		}
	}

	return ContentTypeConversation
}

// GetOptimalTaskType combines detection and selection for callers that
// only have raw text and metadata, not an already-known ContentType.
func GetOptimalTaskType(text string, metadata map[string]interface{}, isQuery bool) string {
	contentType := DetectContentType(text, metadata)
	taskType := SelectTaskType(contentType, isQuery)
	logging.Debugf(logging.CategoryEmbedding, "GetOptimalTaskType: content_type=%s task_type=%s", contentType, taskType)
	return taskType
}
