// Package generator turns extracted journeys into executable test artifacts:
// a rendered Go test file per scenario plus the seed-data and mock-route
// fixtures the adapters consume at execution time.
//
// Generation is deterministic: the same journey rendered with the same
// template library version produces byte-identical output. Artifacts carry
// the library version in their header so a template change is visible as an
// artifact change.
package generator

import "context"

// Page is the browser-facing contract generated tests are written against.
// It is independent of any concrete driver; the in-repo driver walks served
// fixture pages over HTTP, a real browser driver can be substituted without
// regenerating artifacts.
type Page interface {
	// Navigate loads the page at the given route relative to the environment
	// base URL.
	Navigate(ctx context.Context, route string) error

	// Locate reports whether an element matching the selector is present.
	Locate(ctx context.Context, selector string) (bool, error)

	// Click activates the element matching the selector.
	Click(ctx context.Context, selector string) error

	// Fill sets the value of the input matching the selector.
	Fill(ctx context.Context, selector, value string) error

	// Select picks an option on the element matching the selector.
	Select(ctx context.Context, selector, option string) error

	// Submit submits the form containing the element matching the selector.
	Submit(ctx context.Context, selector string) error

	// Assert evaluates an assertion against the current page state.
	Assert(ctx context.Context, a Assertion) error

	// Content returns the current page HTML.
	Content(ctx context.Context) (string, error)
}

// AssertionKind names a page assertion strategy.
type AssertionKind string

const (
	// AssertTextVisible passes when the page text contains the expected string.
	AssertTextVisible AssertionKind = "text-visible"

	// AssertElementPresent passes when the selector matches an element.
	AssertElementPresent AssertionKind = "element-present"

	// AssertURLMatches passes when the current route contains the expected string.
	AssertURLMatches AssertionKind = "url-matches"
)

// Assertion is one expected condition evaluated against the page.
type Assertion struct {
	Kind     AssertionKind `json:"kind"`
	Selector string        `json:"selector,omitempty"`
	Text     string        `json:"text,omitempty"`
}

// TextVisible asserts the page text contains s.
func TextVisible(s string) Assertion {
	return Assertion{Kind: AssertTextVisible, Text: s}
}

// ElementPresent asserts an element matching the selector exists.
func ElementPresent(selector string) Assertion {
	return Assertion{Kind: AssertElementPresent, Selector: selector}
}

// URLMatches asserts the current route contains s.
func URLMatches(s string) Assertion {
	return Assertion{Kind: AssertURLMatches, Text: s}
}
