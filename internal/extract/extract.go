// Package extract fetches web pages and pulls out readable article content.
//
// Extraction runs readability over the fetched HTML and converts the
// article body to markdown. Pages that cannot be fetched or yield no
// readable body are reported as unextractable rather than as errors,
// so callers can skip them without failing a whole batch.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const (
	// userAgent mimics a desktop browser; several sites serve empty
	// shells or challenge pages to unknown clients.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	maxBodyBytes = 10 * 1024 * 1024
	maxRedirects = 5
)

// Result holds the readable content pulled from a page.
type Result struct {
	URL     string
	Domain  string
	Title   string
	Author  string
	Date    string
	Content string // markdown
}

// Extractor fetches pages and extracts readable content.
type Extractor struct {
	client *http.Client
	conv   *converter.Converter
}

// New creates an Extractor. timeout bounds the whole fetch; zero
// means 10 seconds.
func New(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Extractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract fetches rawURL and extracts its readable content.
// A page that cannot be fetched or has no readable body returns
// (nil, nil); errors are reserved for malformed input.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, nil
	}

	content := e.toMarkdown(article.Content, rawURL, article.TextContent)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = pageTitle(body)
	}

	res := &Result{
		URL:     rawURL,
		Domain:  parsed.Hostname(),
		Title:   title,
		Author:  strings.TrimSpace(article.Byline),
		Content: content,
	}
	if article.PublishedTime != nil {
		res.Date = article.PublishedTime.Format("2006-01-02")
	}
	return res, nil
}

// toMarkdown converts extracted article HTML to markdown. Falls back
// to the plain text rendition when conversion fails or comes up empty.
func (e *Extractor) toMarkdown(articleHTML, sourceURL, fallback string) string {
	if articleHTML == "" {
		return strings.TrimSpace(fallback)
	}
	md, err := e.conv.ConvertString(articleHTML, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(fallback)
	}
	return strings.TrimSpace(md)
}

// pageTitle pulls the <title> element out of raw HTML.
func pageTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
