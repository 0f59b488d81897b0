// Package source provides types and parsers for specification ingestion.
package source

import "strings"

// Document represents a parsed specification document.
type Document struct {
	// ID is the document identifier, derived from filename and content hash.
	ID string `json:"id"`

	// Filename is the original filename.
	Filename string `json:"filename"`

	// ContentType is the MIME type the document was parsed as.
	ContentType string `json:"content_type"`

	// Version is the full content hash; journeys extracted from a document
	// are immutable per version.
	Version string `json:"version"`

	// Title is the document title when one could be determined.
	Title string `json:"title,omitempty"`

	// Frontmatter contains parsed YAML frontmatter if present.
	Frontmatter map[string]any `json:"frontmatter,omitempty"`

	// Body is the normalized markdown content without frontmatter.
	Body string `json:"body"`

	// Sections is the body split by markdown headings, in document order.
	Sections []Section `json:"sections"`
}

// HasFrontmatter returns true if the document has parsed frontmatter.
func (d *Document) HasFrontmatter() bool {
	return len(d.Frontmatter) > 0
}

// CriticalMarkers returns explicit critical-path markers declared in
// frontmatter under the "critical" key. Journeys matched against these
// sections outrank any inferred priority.
func (d *Document) CriticalMarkers() []string {
	if !d.HasFrontmatter() {
		return nil
	}

	var markers []string
	switch v := d.Frontmatter["critical"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				markers = append(markers, s)
			}
		}
	case []string:
		markers = v
	case string:
		markers = []string{v}
	}
	return markers
}

// Section is one heading-delimited region of a specification document.
type Section struct {
	// Heading is the section heading text, empty for preamble content.
	Heading string `json:"heading"`

	// Level is the markdown heading level (1-6, 0 for preamble).
	Level int `json:"level"`

	// Content is the full section text including the heading line.
	Content string `json:"content"`

	// Items holds the section's bullet and numbered list entries, the usual
	// carriers of feature lists, user stories, and acceptance criteria.
	Items []string `json:"items,omitempty"`
}

// HasItem reports whether any list item contains the given text,
// case-insensitively.
func (s *Section) HasItem(substr string) bool {
	needle := strings.ToLower(substr)
	for _, item := range s.Items {
		if strings.Contains(strings.ToLower(item), needle) {
			return true
		}
	}
	return false
}
