// Package parser provides specification document parsing.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/c360studio/uatgate/source"
	"gopkg.in/yaml.v3"
)

// MarkdownParser parses markdown documents with optional YAML frontmatter.
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse parses a markdown document, extracting frontmatter, body, and sections.
func (p *MarkdownParser) Parse(filename string, content []byte) (*source.Document, error) {
	str := string(content)
	body := str
	var frontmatter map[string]any

	// Check for YAML frontmatter
	if strings.HasPrefix(str, "---\n") || strings.HasPrefix(str, "---\r\n") {
		fm, rest, err := extractFrontmatter(str)
		if err != nil {
			return nil, fmt.Errorf("parse frontmatter in %s: %w", filepath.Base(filename), err)
		}
		frontmatter = fm
		body = rest
	}

	doc := buildDocument(filename, "text/markdown", content, body)
	doc.Frontmatter = frontmatter
	if title, ok := frontmatter["title"].(string); ok && title != "" {
		doc.Title = title
	} else {
		doc.Title = firstHeading(doc.Sections)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *MarkdownParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown", "text/plain":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *MarkdownParser) MimeType() string {
	return "text/markdown"
}

// buildDocument assembles a Document with its derived ID, version, and
// sections. Body is the normalized markdown; content is the raw input the
// version hash covers.
func buildDocument(filename, contentType string, content []byte, body string) *source.Document {
	version := ContentHash(content)
	return &source.Document{
		ID:          documentID(filename, version),
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Version:     version,
		Body:        body,
		Sections:    source.SplitSections(body),
	}
}

// extractFrontmatter parses YAML frontmatter from markdown content.
// Returns the parsed frontmatter map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	// Skip the opening delimiter and its newline
	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	// Find the closing delimiter
	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		closeIdx = strings.Index(content[start:], "\r\n"+delimiter)
	}
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	// Body starts after the closing delimiter line
	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && (content[bodyStart] == '\n' || content[bodyStart] == '\r') {
		bodyStart++
	}

	body := ""
	if bodyStart < len(content) {
		body = content[bodyStart:]
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse YAML frontmatter: %w", err)
	}

	return frontmatter, body, nil
}

// documentID creates a stable document ID from the filename and version hash.
func documentID(filename, version string) string {
	base := filepath.Base(filename)
	name := sanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		name = "spec"
	}
	return fmt.Sprintf("doc.%s.%s", name, version[:12])
}

// sanitizeID makes a string safe for use in an identifier.
func sanitizeID(s string) string {
	var buf bytes.Buffer
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			buf.WriteRune(r)
		case r >= '0' && r <= '9':
			buf.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			buf.WriteRune('-')
		}
	}
	return strings.Trim(buf.String(), "-")
}

// firstHeading returns the first section heading, if any.
func firstHeading(sections []source.Section) string {
	for _, s := range sections {
		if s.Heading != "" {
			return s.Heading
		}
	}
	return ""
}

// ContentHash computes a SHA256 hash of the content.
func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
