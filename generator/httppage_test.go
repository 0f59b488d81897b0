package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()

	index := fixturePage("Checkout", pageElements{
		buttons: []string{"place-order-button"},
		inputs:  []string{"email-field"},
		texts:   []string{"the order number is shown"},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, index)
	})
	mux.HandleFunc("/cart-page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixturePage("cart page", pageElements{}))
	})
	mux.HandleFunc("/linky", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html lang="en"><head><title>l</title></head><body><a data-uat="open-cart" href="/cart-page">open cart</a></body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPage_NavigateAndAssert(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/"))

	assert.NoError(t, page.Assert(ctx, TextVisible("the order number is shown")))
	assert.NoError(t, page.Assert(ctx, ElementPresent(`[data-uat="place-order-button"]`)))
	assert.NoError(t, page.Assert(ctx, URLMatches("/")))

	err := page.Assert(ctx, TextVisible("no such text"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssertion))

	err = page.Assert(ctx, URLMatches("cart"))
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestHTTPPage_ClickAnchorNavigates(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/linky"))
	require.NoError(t, page.Click(ctx, `[data-uat="open-cart"]`))
	assert.Equal(t, "/cart-page", page.Route())
}

func TestHTTPPage_ClickMissingElement(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/"))
	err := page.Click(ctx, `[data-uat="no-such-button"]`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestHTTPPage_FillRecordsValue(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/"))
	require.NoError(t, page.Fill(ctx, `[data-uat="email-field"]`, "uat@example.test"))
	assert.Equal(t, "uat@example.test", page.FormValues()["email-field"])
}

func TestHTTPPage_UnsupportedSelector(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/"))
	_, err := page.Locate(ctx, "#email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported selector")
}

func TestHTTPPage_NoPageLoaded(t *testing.T) {
	page := NewHTTPPage("http://127.0.0.1:0")
	err := page.Assert(context.Background(), TextVisible("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no page loaded")
}

func TestHTTPPage_NotFound(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)

	err := page.Navigate(context.Background(), "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestHTTPPage_Content(t *testing.T) {
	srv := fixtureServer(t)
	page := NewHTTPPage(srv.URL)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "/"))
	content, err := page.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "<h1>Checkout</h1>")
}
