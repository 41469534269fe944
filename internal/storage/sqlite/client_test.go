package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/siterag/siterag/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return client
}

func testSession(id, startURL string, pages int) *models.CrawlSession {
	session := &models.CrawlSession{
		ID:           id,
		StartURL:     startURL,
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
		SkippedCount: 2,
	}
	for i := 0; i < pages; i++ {
		session.Pages = append(session.Pages, models.PageRecord{
			URL:           startURL + "/page" + string(rune('a'+i)),
			Depth:         i,
			Title:         "Page",
			FetchedAt:     time.Now(),
			RawHTMLRef:    id + "/blob.html",
			CleanedText:   "some cleaned text",
			OutboundLinks: []string{startURL + "/other"},
		})
	}
	session.PageCount = len(session.Pages)
	return session
}

func TestLatestSessionEmpty(t *testing.T) {
	client := newTestClient(t)

	_, err := client.LatestSession()
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	client := newTestClient(t)

	saved := testSession("s1", "https://example.com", 3)
	if err := client.SaveSession(saved); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	latest, err := client.LatestSession()
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "s1" {
		t.Errorf("latest session id = %q, want s1", latest.ID)
	}
	if latest.PageCount != 3 || latest.SkippedCount != 2 {
		t.Errorf("counts = (%d, %d), want (3, 2)", latest.PageCount, latest.SkippedCount)
	}

	pages, err := client.SessionPages("s1")
	if err != nil {
		t.Fatalf("SessionPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	for i, page := range pages {
		if page.URL != saved.Pages[i].URL {
			t.Errorf("page %d out of order: got %q, want %q", i, page.URL, saved.Pages[i].URL)
		}
	}
	if pages[0].CleanedText != "some cleaned text" {
		t.Errorf("cleaned text = %q", pages[0].CleanedText)
	}
	if len(pages[0].OutboundLinks) != 1 || pages[0].OutboundLinks[0] != "https://example.com/other" {
		t.Errorf("outbound links = %v", pages[0].OutboundLinks)
	}
}

func TestLatestPointerMoves(t *testing.T) {
	client := newTestClient(t)

	if err := client.SaveSession(testSession("s1", "https://example.com", 1)); err != nil {
		t.Fatalf("SaveSession s1: %v", err)
	}
	if err := client.SaveSession(testSession("s2", "https://example.org", 2)); err != nil {
		t.Fatalf("SaveSession s2: %v", err)
	}

	latest, err := client.LatestSession()
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "s2" {
		t.Errorf("latest session id = %q, want s2", latest.ID)
	}

	sessions, err := client.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("history has %d sessions, want 2", len(sessions))
	}
}
