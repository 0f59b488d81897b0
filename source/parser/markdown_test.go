package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownParser_Parse_NoFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	content := []byte("# Checkout\n\nGuests can buy without an account.\n")

	doc, err := p.Parse("checkout.md", content)
	require.NoError(t, err)

	assert.Equal(t, "checkout.md", doc.Filename)
	assert.Equal(t, "text/markdown", doc.ContentType)
	assert.Equal(t, "Checkout", doc.Title)
	assert.Len(t, doc.Version, 64)
	assert.True(t, strings.HasPrefix(doc.ID, "doc.checkout."))
	assert.False(t, doc.HasFrontmatter())
}

func TestMarkdownParser_Parse_WithFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	content := []byte(`---
title: Checkout Flow
critical:
  - guest checkout
  - payment capture
---

# Overview

Body text.
`)

	doc, err := p.Parse("checkout.md", content)
	require.NoError(t, err)

	assert.True(t, doc.HasFrontmatter())
	assert.Equal(t, "Checkout Flow", doc.Title)
	assert.Equal(t, []string{"guest checkout", "payment capture"}, doc.CriticalMarkers())
	assert.NotContains(t, doc.Body, "title:")
}

func TestMarkdownParser_Parse_MalformedFrontmatter(t *testing.T) {
	p := NewMarkdownParser()

	content := []byte("---\n\t: not yaml\n---\n\n# Body\n")

	_, err := p.Parse("bad.md", content)
	require.Error(t, err)
}

func TestMarkdownParser_Parse_Sections(t *testing.T) {
	p := NewMarkdownParser()

	content := []byte(`# Checkout

Intro paragraph.

## Guest Flow

- add item to cart
- pay as guest

## Member Flow

- sign in
- pay with saved card
`)

	doc, err := p.Parse("checkout.md", content)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 3)
	assert.Equal(t, "Checkout", doc.Sections[0].Heading)
	assert.Equal(t, "Guest Flow", doc.Sections[1].Heading)
	assert.Equal(t, []string{"add item to cart", "pay as guest"}, doc.Sections[1].Items)
	assert.Equal(t, "Member Flow", doc.Sections[2].Heading)
}

func TestMarkdownParser_VersionTracksContent(t *testing.T) {
	p := NewMarkdownParser()

	a, err := p.Parse("spec.md", []byte("# One\n"))
	require.NoError(t, err)
	b, err := p.Parse("spec.md", []byte("# One\n"))
	require.NoError(t, err)
	c, err := p.Parse("spec.md", []byte("# Two\n"))
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.NotEqual(t, a.Version, c.Version)
	assert.NotEqual(t, a.ID, c.ID, "ID should change with content version")
}

func TestMarkdownParser_CanParse(t *testing.T) {
	p := NewMarkdownParser()

	assert.True(t, p.CanParse("text/markdown"))
	assert.True(t, p.CanParse("text/x-markdown"))
	assert.True(t, p.CanParse("text/plain"))
	assert.False(t, p.CanParse("text/html"))
}

func TestDocumentID_Sanitization(t *testing.T) {
	tests := []struct {
		filename string
		version  string
		want     string
	}{
		{"Checkout Flow.md", "abcdef0123456789", "doc.checkout-flow.abcdef012345"},
		{"specs/payment.md", "abcdef0123456789", "doc.payment.abcdef012345"},
		{"___.md", "abcdef0123456789", "doc.spec.abcdef012345"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, documentID(tt.filename, tt.version))
		})
	}
}
