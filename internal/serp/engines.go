package serp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Engine describes a search provider's listing endpoint and page layout.
type Engine struct {
	Name           string
	BaseURL        string
	QueryParam     string
	OffsetParam    string
	PageOffsetStep int
	Extractor      ExtractorConfig
}

// DuckDuckGo is the JavaScript-free DuckDuckGo listing. Pages hold about 30
// entries, so the second page starts at offset 30.
func DuckDuckGo() Engine {
	return Engine{
		Name:           "duckduckgo",
		BaseURL:        "https://www.duckduckgo.com/html/",
		QueryParam:     "q",
		OffsetParam:    "s",
		PageOffsetStep: 30,
		Extractor: ExtractorConfig{
			Container:    "div.result",
			Link:         "a.result__a",
			SkipClasses:  []string{"result--ad", "result--carousel", "result--more"},
			AdIndicators: []string{"ad_type", "ad_provider"},
			Limit:        10,
		},
	}
}

// Google reads the classic web result blocks, where a result's anchor wraps
// its h3 title.
func Google() Engine {
	return Engine{
		Name:           "google",
		BaseURL:        "https://www.google.com/search",
		QueryParam:     "q",
		OffsetParam:    "start",
		PageOffsetStep: 10,
		Extractor: ExtractorConfig{
			Container:    "div.g",
			Link:         "a:has(h3)",
			AdIndicators: []string{"/aclk?", "googleadservices.com"},
			Limit:        10,
		},
	}
}

// LookupEngine returns the preset registered under name.
func LookupEngine(name string) (Engine, error) {
	switch strings.ToLower(name) {
	case "", "duckduckgo", "ddg":
		return DuckDuckGo(), nil
	case "google":
		return Google(), nil
	}
	return Engine{}, fmt.Errorf("unknown search engine %q", name)
}

// URL builds the listing request for page index page (0-based). The query's
// whitespace-separated tokens are escaped individually and joined with '+'.
func (e Engine) URL(query string, page int) string {
	tokens := strings.Fields(query)
	for i, tok := range tokens {
		tokens[i] = url.QueryEscape(tok)
	}

	sep := "?"
	if strings.Contains(e.BaseURL, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(e.BaseURL)
	b.WriteString(sep)
	b.WriteString(e.QueryParam)
	b.WriteByte('=')
	b.WriteString(strings.Join(tokens, "+"))
	b.WriteByte('&')
	b.WriteString(e.OffsetParam)
	b.WriteByte('=')
	b.WriteString(strconv.Itoa(page * e.PageOffsetStep))
	return b.String()
}
