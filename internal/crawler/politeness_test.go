package crawler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestGateRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	gate := NewGate(srv.Client(), "siterag-crawler/1.0", 0)

	if !gate.Allowed(mustParse(t, srv.URL+"/public/page")) {
		t.Error("public path should be allowed")
	}
	if gate.Allowed(mustParse(t, srv.URL+"/private/page")) {
		t.Error("disallowed path should be blocked")
	}
}

func TestGateMissingRobotsPermissive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gate := NewGate(srv.Client(), "siterag-crawler/1.0", 0)
	if !gate.Allowed(mustParse(t, srv.URL+"/anything")) {
		t.Error("missing robots.txt should be permissive")
	}
}

func TestGateUnreachableRobotsPermissive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL + "/page"
	srv.Close()

	gate := NewGate(http.DefaultClient, "siterag-crawler/1.0", 0)
	if !gate.Allowed(mustParse(t, target)) {
		t.Error("unreachable robots.txt should be permissive")
	}
}

func TestGateRobotsFetchedOncePerHost(t *testing.T) {
	var robotsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
		}
		w.Write([]byte("User-agent: *\nAllow: /\n"))
	}))
	defer srv.Close()

	gate := NewGate(srv.Client(), "siterag-crawler/1.0", 0)
	for i := 0; i < 3; i++ {
		gate.Allowed(mustParse(t, srv.URL+"/page"))
	}

	if got := robotsHits.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestThrottleSpacing(t *testing.T) {
	gate := NewGate(nil, "siterag-crawler/1.0", 500*time.Millisecond)

	clock := time.Unix(1000, 0)
	var slept []time.Duration
	gate.now = func() time.Time { return clock }
	gate.sleep = func(d time.Duration) {
		slept = append(slept, d)
		clock = clock.Add(d)
	}

	gate.Throttle("example.com")
	if len(slept) != 0 {
		t.Fatalf("first fetch should not wait, slept %v", slept)
	}

	clock = clock.Add(200 * time.Millisecond)
	gate.Throttle("example.com")
	if len(slept) != 1 || slept[0] != 300*time.Millisecond {
		t.Fatalf("second fetch should wait 300ms, slept %v", slept)
	}

	clock = clock.Add(700 * time.Millisecond)
	gate.Throttle("example.com")
	if len(slept) != 1 {
		t.Fatalf("fetch after the delay window should not wait, slept %v", slept)
	}
}

func TestThrottleZeroDelay(t *testing.T) {
	gate := NewGate(nil, "siterag-crawler/1.0", 0)
	gate.sleep = func(time.Duration) { t.Fatal("zero delay must never sleep") }

	gate.Throttle("example.com")
	gate.Throttle("example.com")
}

func TestThrottleTracksHostsIndependently(t *testing.T) {
	gate := NewGate(nil, "siterag-crawler/1.0", time.Second)

	clock := time.Unix(1000, 0)
	gate.now = func() time.Time { return clock }
	gate.sleep = func(d time.Duration) { t.Fatalf("unexpected sleep of %v", d) }

	gate.Throttle("a.example.com")
	gate.Throttle("b.example.com")
}
