package qa

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSnippetTextShortPassThrough(t *testing.T) {
	text := "A short chunk of indexed content."
	if got := SnippetText(text); got != text {
		t.Errorf("SnippetText(%q) = %q, want unchanged", text, got)
	}
}

func TestSnippetTextTrimsAtSentenceBoundary(t *testing.T) {
	s1 := "Alpha " + strings.Repeat("alpha ", 18) + "omega."
	s2 := "Bravo " + strings.Repeat("bravo ", 18) + "omega."
	s3 := "Carol " + strings.Repeat("carol ", 18) + "omega."
	text := s1 + " " + s2 + " " + s3

	got := SnippetText(text)

	if n := utf8.RuneCountInString(got); n > maxSnippetRunes {
		t.Fatalf("snippet is %d runes, want at most %d", n, maxSnippetRunes)
	}
	if !strings.HasPrefix(got, s1) {
		t.Errorf("snippet lost the leading sentence: %q", got)
	}
	if strings.Contains(got, "carol") {
		t.Errorf("snippet kept a sentence past the cap: %q", got)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("snippet does not end on a sentence boundary: %q", got)
	}
}

func TestSnippetTextHardCapWithoutPunctuation(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("metric ", 100))

	got := SnippetText(text)

	if n := utf8.RuneCountInString(got); n > maxSnippetRunes {
		t.Errorf("snippet is %d runes, want at most %d", n, maxSnippetRunes)
	}
	if !strings.HasPrefix(text, got) {
		t.Errorf("snippet is not a prefix of the source text: %q", got)
	}
}

func TestTruncateRunesMultibyte(t *testing.T) {
	text := strings.Repeat("日本語", 200)

	got := truncateRunes(text, 10)

	if n := utf8.RuneCountInString(got); n != 10 {
		t.Errorf("truncateRunes kept %d runes, want 10", n)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncateRunes produced invalid UTF-8: %q", got)
	}
}
