package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

const boilerplateSelector = "script, style, noscript, nav, header, footer, aside, svg"

type pageContent struct {
	Title string
	Text  string
	Links []string
}

// extractPage pulls the title, cleaned main-content text and resolved links
// out of an HTML document. Links come off the full document before
// boilerplate removal so navigation links still feed the frontier; base
// should be the final URL after redirects.
func extractPage(html []byte, base *url.URL) (*pageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	content := &pageContent{
		Title: extractTitle(doc),
		Links: extractLinks(doc, base),
	}

	doc.Find(boilerplateSelector).Remove()

	for _, selector := range []string{"main", "article", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(sel.Text()); text != "" {
			content.Text = text
			break
		}
	}

	return content, nil
}

func extractTitle(doc *goquery.Document) string {
	title := collapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		title = collapseWhitespace(doc.Find("h1").First().Text())
	}
	return title
}

// extractLinks returns the canonical form of every http(s) link in document
// order, deduplicated. Unparseable hrefs and non-web schemes are dropped.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}

		canonical, err := Canonicalize(href, base)
		if err != nil {
			return
		}
		if _, ok := seen[canonical]; ok {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	})

	return links
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
