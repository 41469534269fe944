package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Crawler   CrawlerConfig
	Storage   StorageConfig
	Vector    VectorConfig
	LLM       LLMConfig
	Cache     CacheConfig
	LinkGraph LinkGraphConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type CrawlerConfig struct {
	UserAgent       string
	FetchTimeoutSec int
	MaxBodyBytes    int64
	DefaultMaxPages int
	DefaultMaxDepth int
	DefaultDelayMS  int
}

type StorageConfig struct {
	SQLitePath string
	BlobDir    string
}

type VectorConfig struct {
	Backend    string
	Collection string
	Dimension  int
	Chromem    ChromemConfig
	Qdrant     QdrantConfig
	Milvus     MilvusConfig
}

type ChromemConfig struct {
	Path string
}

type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

type MilvusConfig struct {
	Endpoint string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LinkGraphConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/siterag")

	viper.SetEnvPrefix("SITERAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 300)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("crawler.userAgent", "siterag-crawler/1.0")
	viper.SetDefault("crawler.fetchTimeoutSec", 15)
	viper.SetDefault("crawler.maxBodyBytes", 10485760)
	viper.SetDefault("crawler.defaultMaxPages", 40)
	viper.SetDefault("crawler.defaultMaxDepth", 3)
	viper.SetDefault("crawler.defaultDelayMs", 1000)

	viper.SetDefault("storage.sqlitePath", "./data/siterag.db")
	viper.SetDefault("storage.blobDir", "./data/raw")

	viper.SetDefault("vector.backend", "chromem")
	viper.SetDefault("vector.collection", "pages")
	viper.SetDefault("vector.dimension", 768)
	viper.SetDefault("vector.chromem.path", "./data/vectors")
	viper.SetDefault("vector.qdrant.host", "localhost")
	viper.SetDefault("vector.qdrant.port", 6334)
	viper.SetDefault("vector.qdrant.useTls", false)
	viper.SetDefault("vector.milvus.endpoint", "localhost:19530")

	viper.SetDefault("llm.baseUrl", "http://127.0.0.1:11434/v1")
	viper.SetDefault("llm.apiKey", "ollama")
	viper.SetDefault("llm.model", "gemma3:latest")
	viper.SetDefault("llm.embeddingModel", "embeddinggemma")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.ttlSec", 3600)

	viper.SetDefault("linkgraph.enabled", false)
	viper.SetDefault("linkgraph.uri", "bolt://localhost:7687")
	viper.SetDefault("linkgraph.username", "neo4j")
	viper.SetDefault("linkgraph.password", "password")
	viper.SetDefault("linkgraph.database", "neo4j")

	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requestsPerMinute", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
