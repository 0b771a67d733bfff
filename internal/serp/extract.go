package serp

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractorConfig describes how organic results are laid out on a page.
type ExtractorConfig struct {
	// Container selects one listing entry.
	Container string
	// Link selects the primary result anchor inside a container; the first
	// match wins.
	Link string
	// SkipClasses marks non-organic containers (ads, carousels, "more" rows).
	SkipClasses []string
	// AdIndicators are substrings that mark a link as an ad-network redirect.
	AdIndicators []string
	// Limit caps the URLs returned from one page; <= 0 means no cap.
	Limit int
}

// Extractor pulls ranked organic URLs out of a result page.
type Extractor struct {
	cfg ExtractorConfig
}

// NewExtractor returns an Extractor for the given layout.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// DuckDuckGoExtractor returns an Extractor for the DuckDuckGo html endpoint.
func DuckDuckGoExtractor() *Extractor {
	return NewExtractor(DuckDuckGo().Extractor)
}

// ExtractBytes is Extract over an in-memory document.
func (e *Extractor) ExtractBytes(doc []byte) []string {
	return e.Extract(bytes.NewReader(doc))
}

// Extract returns the organic result URLs of the document in page order,
// distinct by exact string and capped at the configured limit. A document
// that cannot be read yields nil.
func (e *Extractor) Extract(r io.Reader) []string {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil
	}

	var urls []string
	seen := make(map[string]struct{})

	doc.Find(e.cfg.Container).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if e.skip(sel) {
			return true
		}

		href, ok := sel.Find(e.cfg.Link).First().Attr("href")
		if !ok || href == "" {
			return true
		}
		if e.isAd(href) {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}

		seen[href] = struct{}{}
		urls = append(urls, href)
		return e.cfg.Limit <= 0 || len(urls) < e.cfg.Limit
	})

	return urls
}

func (e *Extractor) skip(sel *goquery.Selection) bool {
	for _, class := range e.cfg.SkipClasses {
		if sel.HasClass(class) {
			return true
		}
	}
	return false
}

func (e *Extractor) isAd(href string) bool {
	for _, ind := range e.cfg.AdIndicators {
		if strings.Contains(href, ind) {
			return true
		}
	}
	return false
}
