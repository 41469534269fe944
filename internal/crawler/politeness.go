package crawler

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/siterag/siterag/pkg/logger"
)

const maxRobotsBytes = 512 * 1024

// Gate enforces robots.txt rules and a fixed per-host fetch delay. State is
// scoped to a single crawl: robots rules are fetched once per host and
// cached, and last-fetch timestamps start fresh with each new Gate.
type Gate struct {
	client    *http.Client
	userAgent string
	delay     time.Duration

	robots    map[string]*robotstxt.RobotsData // nil entry means permissive
	lastFetch map[string]time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func NewGate(client *http.Client, userAgent string, delay time.Duration) *Gate {
	return &Gate{
		client:    client,
		userAgent: userAgent,
		delay:     delay,
		robots:    make(map[string]*robotstxt.RobotsData),
		lastFetch: make(map[string]time.Time),
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Allowed reports whether robots.txt permits fetching u. An unreachable or
// malformed robots.txt is treated as permissive so a missing policy file
// never stalls a crawl.
func (g *Gate) Allowed(u *url.URL) bool {
	data, ok := g.robots[u.Host]
	if !ok {
		data = g.fetchRobots(u)
		g.robots[u.Host] = data
	}
	if data == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return data.FindGroup(g.userAgent).Test(path)
}

// Throttle blocks until at least the configured delay has passed since the
// previous fetch from host, then records a new fetch timestamp.
func (g *Gate) Throttle(host string) {
	if g.delay > 0 {
		if last, ok := g.lastFetch[host]; ok {
			if wait := g.delay - g.now().Sub(last); wait > 0 {
				g.sleep(wait)
			}
		}
	}
	g.lastFetch[host] = g.now()
}

func (g *Gate) fetchRobots(u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	req, err := http.NewRequest(http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Warn("robots.txt unreachable, treating host as permissive",
			zap.String("host", u.Host),
			zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("No robots.txt policy",
			zap.String("host", u.Host),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		logger.Warn("Failed to read robots.txt, treating host as permissive",
			zap.String("host", u.Host),
			zap.Error(err))
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logger.Warn("Malformed robots.txt, treating host as permissive",
			zap.String("host", u.Host),
			zap.Error(err))
		return nil
	}

	logger.Debug("robots.txt cached", zap.String("host", u.Host))
	return data
}
