package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionError covers both fetch failures (network, timeout, non-200)
// and pages that yield no usable article text.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor fetches a page and reduces it to a plain-text article body
// plus title. It knows nothing about documents or summarization.
type Extractor struct {
	client *http.Client
}

// New wires an HTTP client; a nil client gets a sane default timeout.
func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{client: client}
}

// Extract returns the article title and body concatenated, separated by a
// blank line.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &ExtractionError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", "summarizer/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ExtractionError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ExtractionError{URL: pageURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", &ExtractionError{URL: pageURL, Err: fmt.Errorf("parse document: %w", err)}
	}

	title := extractTitle(doc)
	body := extractBody(doc)
	if body == "" {
		return "", &ExtractionError{URL: pageURL, Err: fmt.Errorf("no article text found")}
	}

	if title == "" {
		return body, nil
	}
	return title + "\n\n" + body, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// extractBody prefers <article> content and falls back to all paragraphs.
// A page without an article element and without paragraph text is not an
// article.
func extractBody(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside").Remove()

	article := doc.Find("article").First()
	scope := article
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		if article.Length() > 0 {
			return strings.TrimSpace(article.Text())
		}
		return ""
	}
	return strings.Join(paragraphs, "\n\n")
}
