package export

import (
	"fmt"
	"strings"
)

// FormatInfo provides metadata about a report format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatMarkdown: {
		Name:        FormatMarkdown,
		MIMEType:    "text/markdown; charset=utf-8",
		Extension:   ".md",
		Description: "Markdown report for review",
	},
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "JSON report for tooling",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat resolves a format flag value. Extensions and short names are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// markdownWriter accumulates a markdown document.
type markdownWriter struct {
	sb strings.Builder
}

// WriteHeading writes a heading at the given level.
func (w *markdownWriter) WriteHeading(level int, text string) {
	w.sb.WriteString(strings.Repeat("#", level))
	w.sb.WriteString(" ")
	w.sb.WriteString(text)
	w.sb.WriteString("\n\n")
}

// WriteLine writes one formatted line.
func (w *markdownWriter) WriteLine(format string, args ...any) {
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteString("\n")
}

// WriteBlank writes a blank line for readability.
func (w *markdownWriter) WriteBlank() {
	w.sb.WriteString("\n")
}

// WriteTable writes a header row, a separator, and the body rows.
func (w *markdownWriter) WriteTable(header []string, rows [][]string) {
	w.writeRow(header)

	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	w.writeRow(sep)

	for _, row := range rows {
		w.writeRow(row)
	}
	w.sb.WriteString("\n")
}

func (w *markdownWriter) writeRow(cells []string) {
	w.sb.WriteString("|")
	for _, c := range cells {
		w.sb.WriteString(" ")
		w.sb.WriteString(escapeCell(c))
		w.sb.WriteString(" |")
	}
	w.sb.WriteString("\n")
}

// String returns the accumulated markdown output.
func (w *markdownWriter) String() string {
	return w.sb.String()
}

// escapeCell keeps cell content from breaking table structure.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
