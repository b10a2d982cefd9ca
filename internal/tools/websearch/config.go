// internal/tools/websearch/config.go
package websearch

import "time"

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	CrawlLimit int
	CacheTTL   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.firecrawl.dev",
		Timeout:    30 * time.Second,
		CrawlLimit: 5,
		CacheTTL:   5 * time.Minute,
	}
}
