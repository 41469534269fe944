package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CrawlDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siterag_crawl_duration_seconds",
			Help:    "Wall-clock duration of crawl runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	CrawlPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_crawl_pages_total",
			Help: "Pages handled by the crawler",
		},
		[]string{"outcome"},
	)

	IndexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siterag_index_duration_seconds",
			Help:    "Wall-clock duration of indexing runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	IndexChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_index_chunks_total",
			Help: "Chunks handled by the indexer",
		},
		[]string{"outcome"},
	)

	AskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "siterag_ask_duration_seconds",
			Help:    "Question answering duration per stage in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	AskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_ask_total",
			Help: "Questions answered, grouped by outcome",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siterag_llm_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	VectorEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "siterag_vector_entries",
			Help: "Entries currently in the vector store",
		},
	)
)

func Init() {
	prometheus.MustRegister(CrawlDuration)
	prometheus.MustRegister(CrawlPages)
	prometheus.MustRegister(IndexDuration)
	prometheus.MustRegister(IndexChunks)
	prometheus.MustRegister(AskDuration)
	prometheus.MustRegister(AskTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(LLMTokens)
	prometheus.MustRegister(VectorEntries)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
