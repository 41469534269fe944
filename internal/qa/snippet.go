package qa

import (
	"strings"
	"unicode/utf8"

	prose "github.com/jdkato/prose/v2"
)

const maxSnippetRunes = 280

// SnippetText reduces chunk text to a short display snippet for the sources
// list: whole sentences while they fit, with a hard rune cap as the fallback
// for text without usable sentence breaks.
func SnippetText(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}

	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false))
	if err == nil {
		var b strings.Builder
		count := 0
		for _, sentence := range doc.Sentences() {
			s := strings.TrimSpace(sentence.Text)
			if s == "" {
				continue
			}
			runes := utf8.RuneCountInString(s)
			if count > 0 && count+runes+1 > maxSnippetRunes {
				break
			}
			if count > 0 {
				b.WriteString(" ")
				count++
			}
			b.WriteString(s)
			count += runes
			if count >= maxSnippetRunes {
				break
			}
		}
		if b.Len() > 0 {
			return truncateRunes(b.String(), maxSnippetRunes)
		}
	}

	return truncateRunes(text, maxSnippetRunes)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
