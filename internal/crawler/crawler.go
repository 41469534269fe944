package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/pkg/logger"
)

// SessionStore persists a finished crawl session.
type SessionStore interface {
	SaveSession(session *models.CrawlSession) error
}

// BlobStore archives raw page bytes and returns a retrieval key.
type BlobStore interface {
	Put(sessionID, pageURL string, data []byte) (string, error)
}

// LinkRecorder mirrors the page link structure into a graph store.
type LinkRecorder interface {
	RecordPage(ctx context.Context, pageURL, title string, links []string) error
}

// Crawler walks a site breadth-first from a start URL, staying inside the
// start URL's registrable domain and honoring robots.txt plus a fixed
// per-host delay.
type Crawler struct {
	client    *http.Client
	sessions  SessionStore
	blobs     BlobStore
	links     LinkRecorder
	userAgent string
	maxBody   int64
}

// New creates a Crawler. links may be nil when no graph store is configured.
func New(client *http.Client, sessions SessionStore, blobs BlobStore, links LinkRecorder, userAgent string, maxBody int64) *Crawler {
	return &Crawler{
		client:    client,
		sessions:  sessions,
		blobs:     blobs,
		links:     links,
		userAgent: userAgent,
		maxBody:   maxBody,
	}
}

type frontierEntry struct {
	url   string
	depth int
}

// Crawl runs a full crawl of target and persists the resulting session.
// Every dequeued URL either becomes a page record or increments the skip
// count, so PageCount+SkippedCount always equals the number of dequeues.
// Per-page failures are skips, not errors; Crawl only fails on an invalid
// start URL, a canceled context or a persistence failure.
func (c *Crawler) Crawl(ctx context.Context, target models.CrawlTarget) (*models.CrawlSession, error) {
	startURL, err := Canonicalize(target.StartURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start url: %w", err)
	}
	domain := registrableDomain(start.Host)

	gate := NewGate(c.client, c.userAgent, target.CrawlDelay)

	session := &models.CrawlSession{
		ID:        uuid.New().String(),
		StartURL:  startURL,
		StartedAt: time.Now().UTC(),
	}

	logger.Info("Crawl started",
		zap.String("session_id", session.ID),
		zap.String("start_url", startURL),
		zap.String("domain", domain),
		zap.Int("max_pages", target.MaxPages),
		zap.Int("max_depth", target.MaxDepth),
		zap.Duration("delay", target.CrawlDelay))

	visited := make(map[string]struct{})
	queued := map[string]struct{}{startURL: {}}
	frontier := []frontierEntry{{url: startURL, depth: 0}}

	for len(frontier) > 0 && len(session.Pages) < target.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("crawl aborted: %w", err)
		}

		entry := frontier[0]
		frontier = frontier[1:]

		if _, ok := visited[entry.url]; ok {
			c.skip(session, entry, "already visited")
			continue
		}
		if entry.depth > target.MaxDepth {
			c.skip(session, entry, "depth limit exceeded")
			continue
		}

		u, err := url.Parse(entry.url)
		if err != nil {
			visited[entry.url] = struct{}{}
			c.skip(session, entry, "unparseable url")
			continue
		}
		if registrableDomain(u.Host) != domain {
			visited[entry.url] = struct{}{}
			c.skip(session, entry, "outside crawl domain")
			continue
		}
		if !gate.Allowed(u) {
			visited[entry.url] = struct{}{}
			c.skip(session, entry, "disallowed by robots.txt")
			continue
		}

		gate.Throttle(u.Host)
		visited[entry.url] = struct{}{}

		finalURL, body, err := c.fetch(ctx, entry.url)
		if err != nil {
			c.skip(session, entry, err.Error())
			continue
		}

		// Redirects are followed, so the landing URL goes through the same
		// canonical, visited and domain checks as a frontier entry.
		pageURL := entry.url
		finalParsed := u
		if finalURL != "" && finalURL != entry.url {
			canonical, err := Canonicalize(finalURL, nil)
			if err != nil {
				c.skip(session, entry, "unparseable redirect target")
				continue
			}
			if canonical != entry.url {
				if _, ok := visited[canonical]; ok {
					c.skip(session, entry, "redirect to visited url")
					continue
				}
				visited[canonical] = struct{}{}
				parsed, err := url.Parse(canonical)
				if err != nil {
					c.skip(session, entry, "unparseable redirect target")
					continue
				}
				if registrableDomain(parsed.Host) != domain {
					c.skip(session, entry, "redirected outside crawl domain")
					continue
				}
				pageURL = canonical
				finalParsed = parsed
			}
		}

		content, err := extractPage(body, finalParsed)
		if err != nil {
			c.skip(session, entry, "unparseable html")
			continue
		}

		ref := ""
		if c.blobs != nil {
			ref, err = c.blobs.Put(session.ID, pageURL, body)
			if err != nil {
				logger.Warn("Failed to archive raw html",
					zap.String("url", pageURL),
					zap.Error(err))
				ref = ""
			}
		}

		outbound := filterDomainLinks(content.Links, domain)

		session.Pages = append(session.Pages, models.PageRecord{
			URL:           pageURL,
			Depth:         entry.depth,
			Title:         content.Title,
			FetchedAt:     time.Now().UTC(),
			RawHTMLRef:    ref,
			CleanedText:   content.Text,
			OutboundLinks: outbound,
		})

		logger.Info("Page crawled",
			zap.String("session_id", session.ID),
			zap.String("url", pageURL),
			zap.Int("depth", entry.depth),
			zap.Int("links", len(outbound)),
			zap.Int("text_len", len(content.Text)))

		if c.links != nil {
			if err := c.links.RecordPage(ctx, pageURL, content.Title, outbound); err != nil {
				logger.Warn("Failed to record page in link graph",
					zap.String("url", pageURL),
					zap.Error(err))
			}
		}

		if entry.depth < target.MaxDepth {
			for _, link := range outbound {
				if _, ok := visited[link]; ok {
					continue
				}
				if _, ok := queued[link]; ok {
					continue
				}
				queued[link] = struct{}{}
				frontier = append(frontier, frontierEntry{url: link, depth: entry.depth + 1})
			}
		}
	}

	session.PageCount = len(session.Pages)
	session.FinishedAt = time.Now().UTC()

	if err := c.sessions.SaveSession(session); err != nil {
		return nil, fmt.Errorf("failed to persist crawl session: %w", err)
	}

	logger.Info("Crawl finished",
		zap.String("session_id", session.ID),
		zap.Int("pages", session.PageCount),
		zap.Int("skipped", session.SkippedCount),
		zap.Duration("elapsed", session.FinishedAt.Sub(session.StartedAt)))

	return session, nil
}

// fetch retrieves one page and returns the final URL after redirects along
// with the body, capped at maxBody bytes. Non-200 statuses and non-HTML
// content types are errors; the caller records them as skips.
func (c *Crawler) fetch(ctx context.Context, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		return finalURL, nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return finalURL, nil, fmt.Errorf("not html: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return finalURL, nil, fmt.Errorf("failed to read body: %w", err)
	}

	return finalURL, body, nil
}

func (c *Crawler) skip(session *models.CrawlSession, entry frontierEntry, reason string) {
	session.SkippedCount++
	logger.Debug("Page skipped",
		zap.String("session_id", session.ID),
		zap.String("url", entry.url),
		zap.Int("depth", entry.depth),
		zap.String("reason", reason))
}

func filterDomainLinks(links []string, domain string) []string {
	var kept []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if registrableDomain(u.Host) == domain {
			kept = append(kept, link)
		}
	}
	return kept
}
