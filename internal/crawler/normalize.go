package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize resolves raw against base (nil for absolute URLs) and reduces
// it to the canonical form used as the visited-set key: lowercase scheme and
// host, fragment stripped, query preserved, default ports dropped, trailing
// slash stripped from non-root paths.
func Canonicalize(raw string, base *url.URL) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	switch {
	case parsed.Path == "":
		parsed.Path = "/"
	case parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/"):
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}

// registrableDomain reduces a host to its eTLD+1, the boundary a crawl may
// not leave. IPs, localhost and other hosts without a public suffix fall back
// to the bare host so crawls against test or intranet servers still work.
func registrableDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if net.ParseIP(host) != nil {
		return host
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
