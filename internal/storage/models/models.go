package models

import "time"

// CrawlTarget is the immutable parameter set for one crawl invocation.
type CrawlTarget struct {
	StartURL   string
	MaxPages   int
	MaxDepth   int
	CrawlDelay time.Duration
}

// PageRecord is one successfully fetched page. Records are immutable once
// written; a session holds at most one record per canonical URL.
type PageRecord struct {
	URL           string
	Depth         int
	Title         string
	FetchedAt     time.Time
	RawHTMLRef    string
	CleanedText   string
	OutboundLinks []string
}

type CrawlSession struct {
	ID           string
	StartURL     string
	StartedAt    time.Time
	FinishedAt   time.Time
	PageCount    int
	SkippedCount int
	Pages        []PageRecord
}

// Chunk is a contiguous slice of a page's cleaned text. Offsets are rune
// positions into the text the chunk was cut from.
type Chunk struct {
	ID          string
	SourceURL   string
	Text        string
	StartOffset int
	EndOffset   int
	Index       int
}
