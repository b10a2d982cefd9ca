// internal/tools/websearch/models.go
package websearch

// Page is one crawled search result returned to the model.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Output is the tool result: a list of pages, possibly empty.
type Output struct {
	Query string `json:"query"`
	Pages []Page `json:"pages"`
}

// crawlRequest is the Firecrawl crawl call.
type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

// crawlResponse is the subset of the Firecrawl response we consume.
type crawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		Markdown string `json:"markdown"`
		Text     string `json:"text"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}
