package linkgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/siterag/siterag/pkg/circuitbreaker"
	"github.com/siterag/siterag/pkg/logger"
	"github.com/siterag/siterag/pkg/retry"
)

// Client mirrors the crawl's page/link structure into Neo4j. Recording is
// best-effort: the crawler logs failures and keeps going.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.Breaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	cb := circuitbreaker.New("linkgraph", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      20 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  3 * time.Second,
		Factor:    2.0,
		Jitter:    0.1,
		Logger:    logger.GetLogger(),
	}

	logger.Info("Link graph client initialized",
		zap.String("uri", uri),
		zap.String("database", database),
	)

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// RecordPage upserts the page node and a LINKS_TO edge per outbound link.
// Re-crawling the same page refreshes its title and edges instead of
// duplicating them.
func (c *Client) RecordPage(ctx context.Context, pageURL, title string, links []string) error {
	if links == nil {
		links = []string{}
	}

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			query := `
				MERGE (p:Page {url: $url})
				SET p.title = $title,
				    p.last_crawled_at = timestamp()
				WITH p
				UNWIND $links AS link
				MERGE (t:Page {url: link})
				MERGE (p)-[:LINKS_TO]->(t)
			`
			_, err := tx.Run(ctx, query, map[string]interface{}{
				"url":   pageURL,
				"title": title,
				"links": links,
			})
			return nil, err
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record page in link graph: %w", err)
	}

	logger.Debug("Page recorded in link graph",
		zap.String("url", pageURL),
		zap.Int("links", len(links)),
	)

	return nil
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}
