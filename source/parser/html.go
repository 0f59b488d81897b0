package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/c360studio/uatgate/source"
)

// Pre-compiled regexes to avoid runtime compilation on every document.
var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// HTMLParser parses HTML specification exports (wiki pages, rendered docs)
// by reducing them to readable markdown first.
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser() *HTMLParser {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &HTMLParser{converter: converter}
}

// Parse converts an HTML document to markdown and parses it into sections.
// The readability pass strips navigation and boilerplate so only the
// specification content reaches extraction.
func (p *HTMLParser) Parse(filename string, content []byte) (*source.Document, error) {
	title := extractHTMLTitle(content)

	main, articleTitle, err := p.extractReadable(filename, content)
	if err != nil {
		return nil, fmt.Errorf("extract readable content from %s: %w", filename, err)
	}

	markdown, err := p.converter.ConvertString(main)
	if err != nil {
		return nil, fmt.Errorf("convert %s to markdown: %w", filename, err)
	}
	markdown = cleanMarkdown(markdown)

	doc := buildDocument(filename, "text/html", content, markdown)
	switch {
	case title != "":
		doc.Title = title
	case articleTitle != "":
		doc.Title = articleTitle
	default:
		doc.Title = firstHeading(doc.Sections)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *HTMLParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *HTMLParser) MimeType() string {
	return "text/html"
}

// extractReadable runs the readability pass over the raw HTML and returns the
// main content as HTML plus the title readability derived. Documents too
// sparse for readability fall back to a script/style strip of the original.
func (p *HTMLParser) extractReadable(filename string, content []byte) (string, string, error) {
	// Readability resolves relative links against the page URL, so local
	// files get a synthetic one
	pageURL := &url.URL{Scheme: "file", Path: "/" + filename}

	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		return article.Content, strings.TrimSpace(article.Title), nil
	}

	// Readability found nothing usable; strip the obvious noise and keep the rest
	cleaned := scriptRe.ReplaceAllString(string(content), "")
	cleaned = styleRe.ReplaceAllString(cleaned, "")
	if strings.TrimSpace(cleaned) == "" {
		return "", "", fmt.Errorf("document has no readable content")
	}
	return cleaned, "", nil
}

// extractHTMLTitle extracts the <title> text from HTML.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title
}

// cleanMarkdown normalizes converter output: collapses excessive blank lines
// and trims trailing whitespace per line.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
