package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const directStrategyName = "direct"

// Anti-automation rejection used by some job boards. Outside the standard
// status space; treated like a network failure, never retried within a run.
const statusAntiAutomation = 999

const defaultDirectTimeout = 15 * time.Second

var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// DirectFetch performs a plain HTTP GET with realistic browser headers and
// extracts the visible text from the returned HTML.
type DirectFetch struct {
	client *http.Client
	logger *zap.Logger
}

// NewDirectFetch builds the direct strategy with a bounded per-call timeout.
func NewDirectFetch(timeout time.Duration, log *zap.Logger) *DirectFetch {
	if timeout <= 0 {
		timeout = defaultDirectTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectFetch{
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

func (d *DirectFetch) Name() string { return directStrategyName }

func (d *DirectFetch) Fetch(ctx context.Context, target string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failure(d.Name(), FailureInvalidURL, fmt.Sprintf("build request: %v", err))
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return failure(d.Name(), FailureTransport, fmt.Sprintf("get: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == statusAntiAutomation:
		d.logger.Info("anti-automation rejection",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
		)
		return failure(d.Name(), FailureTransport, "anti-automation rejection (999)")
	case resp.StatusCode == http.StatusTooManyRequests:
		return failure(d.Name(), FailureRateLimited, "rate limited")
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return failure(d.Name(), FailureUnsupported, fmt.Sprintf("bad status: %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return failure(d.Name(), FailureTransport, fmt.Sprintf("bad status: %s", resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text/plain") {
		return failure(d.Name(), FailureUnsupported, "unsupported content type: "+contentType)
	}

	text, err := extractVisibleText(resp)
	if err != nil {
		return failure(d.Name(), FailureUnsupported, fmt.Sprintf("parse html: %v", err))
	}
	if text == "" {
		return failure(d.Name(), FailureUnsupported, "page has no visible text")
	}

	return Result{Strategy: d.Name(), Text: text}
}

// extractVisibleText strips scripts and styles and joins the remaining text
// nodes with single spaces.
func extractVisibleText(resp *http.Response) (string, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var parts []string
	for _, node := range root.Nodes {
		collectText(node, &parts)
	}

	return strings.Join(parts, " "), nil
}

// collectText appends the whitespace-normalized content of every text node
// under n, one element text at a time so adjacent tags do not run together.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
			*parts = append(*parts, strings.Join(strings.Fields(trimmed), " "))
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
