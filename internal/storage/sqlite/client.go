package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/siterag/siterag/internal/storage/models"
	"github.com/siterag/siterag/pkg/logger"
)

var ErrNoSession = errors.New("no crawl session recorded")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_sessions (
		id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		page_count INTEGER NOT NULL,
		skipped_count INTEGER NOT NULL,
		is_latest INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON crawl_sessions(started_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_latest ON crawl_sessions(is_latest);

	CREATE TABLE IF NOT EXISTS page_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT,
		fetched_at INTEGER NOT NULL,
		raw_html_ref TEXT,
		cleaned_text TEXT NOT NULL,
		outbound_links TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES crawl_sessions(id) ON DELETE CASCADE,
		UNIQUE(session_id, url)
	);
	CREATE INDEX IF NOT EXISTS idx_pages_session ON page_records(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// SaveSession persists a finished crawl session with its pages and flips the
// latest pointer to it, all in one transaction.
func (c *Client) SaveSession(session *models.CrawlSession) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO crawl_sessions (id, start_url, started_at, finished_at, page_count, skipped_count, is_latest)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		session.ID,
		session.StartURL,
		session.StartedAt.Unix(),
		session.FinishedAt.Unix(),
		session.PageCount,
		session.SkippedCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, page := range session.Pages {
		linksJSON, err := json.Marshal(page.OutboundLinks)
		if err != nil {
			return fmt.Errorf("failed to marshal outbound links: %w", err)
		}

		_, err = tx.Exec(
			`INSERT INTO page_records (session_id, position, url, depth, title, fetched_at, raw_html_ref, cleaned_text, outbound_links)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID,
			i,
			page.URL,
			page.Depth,
			page.Title,
			page.FetchedAt.Unix(),
			page.RawHTMLRef,
			page.CleanedText,
			string(linksJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert page record: %w", err)
		}
	}

	_, err = tx.Exec(`UPDATE crawl_sessions SET is_latest = 0 WHERE is_latest = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear latest pointer: %w", err)
	}

	_, err = tx.Exec(`UPDATE crawl_sessions SET is_latest = 1 WHERE id = ?`, session.ID)
	if err != nil {
		return fmt.Errorf("failed to set latest pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	logger.Info("Crawl session saved",
		zap.String("session_id", session.ID),
		zap.Int("pages", session.PageCount),
		zap.Int("skipped", session.SkippedCount),
	)

	return nil
}

// LatestSession returns the session the latest pointer designates, without
// its pages. Returns ErrNoSession when nothing has been crawled yet.
func (c *Client) LatestSession() (*models.CrawlSession, error) {
	query := `SELECT id, start_url, started_at, finished_at, page_count, skipped_count
		FROM crawl_sessions WHERE is_latest = 1`

	var session models.CrawlSession
	var startedAt, finishedAt int64

	err := c.db.QueryRow(query).Scan(
		&session.ID,
		&session.StartURL,
		&startedAt,
		&finishedAt,
		&session.PageCount,
		&session.SkippedCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}

	session.StartedAt = time.Unix(startedAt, 0)
	session.FinishedAt = time.Unix(finishedAt, 0)

	return &session, nil
}

// SessionPages returns a session's pages in crawl order.
func (c *Client) SessionPages(sessionID string) ([]models.PageRecord, error) {
	query := `SELECT url, depth, title, fetched_at, raw_html_ref, cleaned_text, outbound_links
		FROM page_records WHERE session_id = ? ORDER BY position`

	rows, err := c.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session pages: %w", err)
	}
	defer rows.Close()

	var pages []models.PageRecord
	for rows.Next() {
		var page models.PageRecord
		var fetchedAt int64
		var linksJSON string

		err := rows.Scan(
			&page.URL,
			&page.Depth,
			&page.Title,
			&fetchedAt,
			&page.RawHTMLRef,
			&page.CleanedText,
			&linksJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		page.FetchedAt = time.Unix(fetchedAt, 0)
		json.Unmarshal([]byte(linksJSON), &page.OutboundLinks)
		pages = append(pages, page)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session pages: %w", err)
	}

	return pages, nil
}

func (c *Client) RecentSessions(limit int) ([]models.CrawlSession, error) {
	query := `SELECT id, start_url, started_at, finished_at, page_count, skipped_count
		FROM crawl_sessions ORDER BY started_at DESC LIMIT ?`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.CrawlSession
	for rows.Next() {
		var s models.CrawlSession
		var startedAt, finishedAt int64

		err := rows.Scan(&s.ID, &s.StartURL, &startedAt, &finishedAt, &s.PageCount, &s.SkippedCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.StartedAt = time.Unix(startedAt, 0)
		s.FinishedAt = time.Unix(finishedAt, 0)
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
