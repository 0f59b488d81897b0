package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLParser_Parse(t *testing.T) {
	p := NewHTMLParser()

	t.Run("full page", func(t *testing.T) {
		content := []byte(`<!DOCTYPE html>
<html>
<head>
	<title>Checkout Specification</title>
	<script>window.analytics = true;</script>
	<style>body { margin: 0; }</style>
</head>
<body>
	<nav><a href="/">Home</a><a href="/docs">Docs</a></nav>
	<main>
		<h1>Checkout</h1>
		<p>Guests can complete a purchase without creating an account. The
		payment step captures the card once the order is confirmed and the
		confirmation page shows the order number with an emailed receipt.</p>
		<h2>Guest Flow</h2>
		<p>The guest flow skips account creation entirely and asks only for a
		shipping address and an email address for the receipt.</p>
		<ul>
			<li>add item to cart</li>
			<li>pay as guest</li>
		</ul>
	</main>
	<footer>&copy; 2025</footer>
</body>
</html>`)

		doc, err := p.Parse("checkout.html", content)
		require.NoError(t, err)

		assert.Equal(t, "Checkout Specification", doc.Title)
		assert.Equal(t, "text/html", doc.ContentType)
		assert.Contains(t, doc.Body, "payment step captures")
		assert.Contains(t, doc.Body, "skips account creation")
		assert.NotContains(t, doc.Body, "window.analytics")
		assert.NotContains(t, doc.Body, "margin: 0")
	})

	t.Run("fragment without title", func(t *testing.T) {
		content := []byte(`<h1>Payment Rules</h1>
<p>Cards are authorized at order time and captured at shipment. Refunds go
back to the original payment method within five business days.</p>
<h2>Edge Cases</h2>
<p>Partial shipments capture only the shipped amount.</p>`)

		doc, err := p.Parse("payment.html", content)
		require.NoError(t, err)

		assert.Contains(t, doc.Body, "Cards are authorized")
		assert.NotEmpty(t, doc.Title)
	})

	t.Run("list items survive conversion", func(t *testing.T) {
		content := []byte(`<html><head><title>Flows</title></head><body>
<article>
<h2>Returns</h2>
<p>The returns flow lets a signed-in member send items back for a refund
within thirty days of delivery, as long as the item is unused and still in
its original packaging. Refunds post to the original payment method.</p>
<ul><li>request a return label</li><li>drop off the package</li></ul>
</article>
</body></html>`)

		doc, err := p.Parse("flows.html", content)
		require.NoError(t, err)

		assert.Contains(t, doc.Body, "request a return label")
	})
}

func TestHTMLParser_CanParse(t *testing.T) {
	p := NewHTMLParser()

	assert.True(t, p.CanParse("text/html"))
	assert.True(t, p.CanParse("application/xhtml+xml"))
	assert.False(t, p.CanParse("text/markdown"))
}

func TestCleanMarkdown(t *testing.T) {
	in := "# Title   \n\n\n\n\n\nBody\t\n"
	out := cleanMarkdown(in)

	assert.Equal(t, "# Title\n\n\nBody", out)
}

func TestExtractHTMLTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"simple", "<html><head><title>Spec</title></head><body></body></html>", "Spec"},
		{"whitespace", "<title>  Padded  </title>", "Padded"},
		{"missing", "<html><body><p>No title</p></body></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractHTMLTitle([]byte(tt.content)))
		})
	}
}
