package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrAssertion marks a failed page assertion. Callers distinguish it from
// transport errors with errors.Is.
var ErrAssertion = errors.New("assertion failed")

// HTTPPage is the in-repo Page driver. It walks fixture pages served by the
// virtualization adapter over plain HTTP and evaluates assertions against the
// parsed markup. Not safe for concurrent use; each execution unit creates its
// own page.
type HTTPPage struct {
	base   string
	client *http.Client

	route string
	raw   string
	doc   *html.Node
	form  map[string]string
}

// NewHTTPPage creates a driver rooted at the given base URL.
func NewHTTPPage(base string) *HTTPPage {
	return &HTTPPage{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		form:   make(map[string]string),
	}
}

// Navigate loads the page at route and parses it.
func (p *HTTPPage) Navigate(ctx context.Context, route string) error {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+route, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", route, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("navigate to %s: status %d", route, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", route, err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("parse %s: %w", route, err)
	}

	p.route = route
	p.raw = string(body)
	p.doc = doc
	return nil
}

// Locate reports whether an element matching the selector is present.
func (p *HTTPPage) Locate(_ context.Context, selector string) (bool, error) {
	if p.doc == nil {
		return false, errors.New("no page loaded")
	}
	key, err := uatAttr(selector)
	if err != nil {
		return false, err
	}
	return findByUAT(p.doc, key) != nil, nil
}

// Click requires the element to be present. Anchors navigate to their href;
// other elements leave the page unchanged.
func (p *HTTPPage) Click(ctx context.Context, selector string) error {
	node, err := p.require(selector)
	if err != nil {
		return err
	}
	if node.Data == "a" {
		if href := attrValue(node, "href"); href != "" {
			return p.Navigate(ctx, href)
		}
	}
	return nil
}

// Fill records a value for the input matching the selector.
func (p *HTTPPage) Fill(_ context.Context, selector, value string) error {
	node, err := p.require(selector)
	if err != nil {
		return err
	}
	p.form[attrValue(node, "data-uat")] = value
	return nil
}

// Select records an option choice for the element matching the selector.
func (p *HTTPPage) Select(_ context.Context, selector, option string) error {
	node, err := p.require(selector)
	if err != nil {
		return err
	}
	p.form[attrValue(node, "data-uat")] = option
	return nil
}

// Submit requires the element to be present.
func (p *HTTPPage) Submit(_ context.Context, selector string) error {
	_, err := p.require(selector)
	return err
}

// Assert evaluates an assertion against the current page.
func (p *HTTPPage) Assert(ctx context.Context, a Assertion) error {
	if p.doc == nil {
		return errors.New("no page loaded")
	}

	switch a.Kind {
	case AssertTextVisible:
		if !strings.Contains(collapseSpace(textContent(p.doc)), collapseSpace(a.Text)) {
			return fmt.Errorf("%w: text %q not visible on %s", ErrAssertion, a.Text, p.route)
		}
		return nil

	case AssertElementPresent:
		found, err := p.Locate(ctx, a.Selector)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: no element matches %s on %s", ErrAssertion, a.Selector, p.route)
		}
		return nil

	case AssertURLMatches:
		if !strings.Contains(p.route, a.Text) {
			return fmt.Errorf("%w: route %s does not match %q", ErrAssertion, p.route, a.Text)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion kind %q", a.Kind)
	}
}

// Content returns the raw HTML of the current page.
func (p *HTTPPage) Content(_ context.Context) (string, error) {
	if p.doc == nil {
		return "", errors.New("no page loaded")
	}
	return p.raw, nil
}

// Route returns the currently loaded route, empty before the first Navigate.
func (p *HTTPPage) Route() string {
	return p.route
}

// FormValues returns the values recorded by Fill and Select.
func (p *HTTPPage) FormValues() map[string]string {
	return p.form
}

func (p *HTTPPage) require(selector string) (*html.Node, error) {
	if p.doc == nil {
		return nil, errors.New("no page loaded")
	}
	key, err := uatAttr(selector)
	if err != nil {
		return nil, err
	}
	node := findByUAT(p.doc, key)
	if node == nil {
		return nil, fmt.Errorf("%w: no element matches %s on %s", ErrAssertion, selector, p.route)
	}
	return node, nil
}

// uatAttr extracts the attribute value from a [data-uat="..."] selector, the
// only selector form fixture pages use.
func uatAttr(selector string) (string, error) {
	const prefix = `[data-uat="`
	const suffix = `"]`
	if !strings.HasPrefix(selector, prefix) || !strings.HasSuffix(selector, suffix) {
		return "", fmt.Errorf("unsupported selector %q", selector)
	}
	return selector[len(prefix) : len(selector)-len(suffix)], nil
}

// findByUAT walks the parse tree for the first element with the given
// data-uat attribute.
func findByUAT(n *html.Node, key string) *html.Node {
	if n.Type == html.ElementNode && attrValue(n, "data-uat") == key {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByUAT(c, key); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// textContent flattens all text nodes in document order.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
