package crawler

import (
	"net/url"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	base, err := url.Parse("https://Example.COM/docs/intro/")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips fragment", "https://example.com/page#section-2", "https://example.com/page"},
		{"preserves query", "https://example.com/search?q=go&page=2", "https://example.com/search?q=go&page=2"},
		{"drops default http port", "http://example.com:80/a", "http://example.com/a"},
		{"drops default https port", "https://example.com:443/a", "https://example.com/a"},
		{"keeps explicit port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"adds root path", "https://example.com", "https://example.com/"},
		{"strips trailing slash", "https://example.com/docs/", "https://example.com/docs"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"resolves relative path", "../guide", "https://example.com/docs/guide"},
		{"resolves absolute path", "/about", "https://example.com/about"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.raw, base)
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"mailto", "mailto:team@example.com"},
		{"javascript", "javascript:void(0)"},
		{"ftp", "ftp://example.com/file"},
		{"no host", "http:///path-only"},
		{"relative without base", "/about"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := Canonicalize(tt.raw, nil); err == nil {
				t.Errorf("Canonicalize(%q) = %q, want error", tt.raw, got)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	urls := []string{
		"HTTP://Example.com:80/Docs/?q=1#frag",
		"https://example.com",
		"https://example.com/a/b/",
	}

	for _, raw := range urls {
		first, err := Canonicalize(raw, nil)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", raw, err)
		}
		second, err := Canonicalize(first, nil)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", first, err)
		}
		if first != second {
			t.Errorf("not idempotent: %q -> %q -> %q", raw, first, second)
		}
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"docs.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"Example.COM", "example.com"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"localhost:3000", "localhost"},
		{"[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		if got := registrableDomain(tt.host); got != tt.want {
			t.Errorf("registrableDomain(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
