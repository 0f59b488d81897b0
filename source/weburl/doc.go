// Package weburl fetches specification pages from the web with SSRF
// protection.
//
// # Overview
//
// Specification documents can live behind HTTPS URLs (wikis, rendered doc
// sites) as well as on disk. This package validates those URLs, fetches them
// safely, and derives stable slugs for the resulting documents.
//
// # URL Validation
//
// The ValidateURL function checks URLs against multiple security criteria:
//
//   - Requires HTTPS scheme
//   - Blocks localhost variants (localhost, 127.0.0.1, ::1)
//   - Blocks local domains (.local, .internal)
//   - Blocks private IP ranges (RFC 1918, CGNAT, link-local)
//
// # IP Address Handling
//
// The IsPrivateIP function detects private/reserved IP addresses including:
//
//   - IPv4 private ranges (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - IPv4 loopback (127.0.0.0/8)
//   - IPv4 link-local (169.254.0.0/16)
//   - CGNAT range (100.64.0.0/10)
//   - IPv6 loopback (::1)
//   - IPv6 unique local (fc00::/7)
//   - IPv6 link-local (fe80::/10)
//   - IPv6-mapped IPv4 addresses (::ffff:x.x.x.x)
//
// CIDRs are pre-compiled at package initialization.
//
// # Fetching
//
// Fetcher wraps an http.Client whose dialer re-validates every resolved IP,
// closing the DNS rebinding hole that URL-level validation alone leaves open.
// Redirect targets are validated the same way, response bodies are capped,
// and ETag-based conditional fetches let watch mode skip unchanged pages.
//
// # Slugs
//
// Slug creates readable, filesystem-safe names from URLs:
//
//	https://wiki.example.com/specs/checkout → wiki-example-com-specs-checkout
//
// Slugs are lowercase, hyphen-separated, truncated to 80 characters, and
// deterministic. Invalid URLs fall back to a content hash.
package weburl
