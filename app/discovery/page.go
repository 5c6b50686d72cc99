package discovery

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ScanLinks returns every absolute link in an HTML document, in document order.
func ScanLinks(data []byte, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			links = append(links, u.String())
		}
	})
	return links, nil
}

const maxSummaryLength = 500

// Summarize extracts a short description of a page via readability.
func Summarize(data []byte, pageURL *url.URL) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	summary := strings.TrimSpace(article.Excerpt)
	if summary == "" {
		summary = strings.Join(strings.Fields(article.TextContent), " ")
	}
	if summary == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	if r := []rune(summary); len(r) > maxSummaryLength {
		summary = string(r[:maxSummaryLength])
	}

	slog.Debug("Homepage summarised", "title", article.Title, "length", len(summary))
	return summary, nil
}
