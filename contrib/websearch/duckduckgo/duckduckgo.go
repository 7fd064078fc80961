// Package duckduckgo implements websearch.Searcher by scraping the
// DuckDuckGo HTML endpoint. It needs no API key.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sweetpotato0/askflow/rag/preprocess"
	"github.com/sweetpotato0/askflow/rag/websearch"
)

const defaultURL = "https://html.duckduckgo.com/html/"

var _ websearch.Searcher = (*Searcher)(nil)

// Searcher fetches and parses result pages.
type Searcher struct {
	endpoint string
	region   string
	client   *http.Client
}

// New creates a searcher. region is DuckDuckGo's kl value ("kr-kr",
// "us-en"); endpoint defaults to the public HTML page.
func New(endpoint, region string) *Searcher {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultURL
	}
	return &Searcher{
		endpoint: endpoint,
		region:   region,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Search implements websearch.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	form := url.Values{"q": {query}}
	if s.region != "" {
		form.Set("kl", s.region)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; askflow)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("duckduckgo request failed with status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo page: %w", err)
	}
	return parseResults(doc, topK), nil
}

func parseResults(doc *goquery.Document, topK int) []websearch.Result {
	var results []websearch.Result
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.HasClass("result--ad") {
			return true
		}
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		results = append(results, websearch.Result{
			Title:   preprocess.Snippet(link.Text()),
			URL:     resolveLink(href),
			Snippet: preprocess.Snippet(sel.Find(".result__snippet").First().Text()),
		})
		return topK <= 0 || len(results) < topK
	})
	return results
}

// resolveLink unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
