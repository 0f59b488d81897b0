package parser

import (
	"regexp"
	"strings"

	"github.com/c360studio/uatgate/source"
)

// reStructuredText patterns
var (
	// Section underlines: ===, ---, ~~~, ^^^, etc.
	rstSectionUnderline = regexp.MustCompile(`^(={3,}|-{3,}|~{3,}|\^{3,}|\+{3,}|#{3,}|\*{3,}|_{3,})$`)

	// Code blocks: .. code-block:: or :: followed by indented content
	rstCodeBlockDirective = regexp.MustCompile(`^\.\. code(?:-block)?::`)
	rstCodeBlockShort     = regexp.MustCompile(`::$`)

	// Field list: :field-name: value
	rstFieldList = regexp.MustCompile(`^:([^:]+):(.*)$`)

	// Directive: .. directive-name::
	rstDirective = regexp.MustCompile(`^\.\. ([a-z-]+)::`)
)

// RSTParser parses reStructuredText specification documents.
type RSTParser struct{}

// NewRSTParser creates a new RST parser.
func NewRSTParser() *RSTParser {
	return &RSTParser{}
}

// Parse parses an RST document.
func (p *RSTParser) Parse(filename string, content []byte) (*source.Document, error) {
	str := string(content)

	// Leading field lists act as frontmatter
	metadata, body := p.extractFieldListMetadata(str)
	if metadata == nil {
		body = str
	}

	converted := p.convertToMarkdownStyle(body)

	doc := buildDocument(filename, "text/x-rst", content, converted)
	doc.Frontmatter = metadata
	if title, ok := metadata["title"].(string); ok {
		doc.Title = title
	} else {
		doc.Title = firstHeading(doc.Sections)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *RSTParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/x-rst", "text/rst", "text/restructuredtext":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *RSTParser) MimeType() string {
	return "text/x-rst"
}

// extractFieldListMetadata extracts field list metadata from the start of an
// RST document. Returns nil when the document does not open with a field list.
func (p *RSTParser) extractFieldListMetadata(content string) (map[string]any, string) {
	lines := strings.Split(content, "\n")
	metadata := make(map[string]any)
	bodyStart := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		match := rstFieldList.FindStringSubmatch(trimmed)
		if match == nil {
			// First non-field-list, non-empty line ends the metadata block
			break
		}
		key := strings.ToLower(strings.TrimSpace(match[1]))
		metadata[key] = strings.TrimSpace(match[2])
		bodyStart = i + 1
	}

	if len(metadata) == 0 {
		return nil, content
	}

	body := strings.Join(lines[bodyStart:], "\n")
	return metadata, strings.TrimLeft(body, "\n")
}
