package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const extractionStrategyName = "extraction_service"

// ExtractionService calls a managed content-extraction API (Firecrawl v2
// wire format): a POST of {url, formats, timeout} answered with a simplified
// markdown rendering of the page.
type ExtractionService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// ExtractionConfig configures the managed extraction strategy.
type ExtractionConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

const (
	defaultExtractionBaseURL = "https://api.firecrawl.dev/v2"
	defaultExtractionTimeout = 30 * time.Second
)

// NewExtractionService builds the strategy. With no API key it stays inert
// and reports every call as unsupported so the chain falls through.
func NewExtractionService(cfg ExtractionConfig, log *zap.Logger) *ExtractionService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultExtractionBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExtractionTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExtractionService{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		timeout: cfg.Timeout,
		logger:  log,
	}
}

func (s *ExtractionService) Name() string { return extractionStrategyName }

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	Timeout int64    `json:"timeout"`
}

type scrapeData struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Fetch asks the extraction service for a simplified and a raw rendering of
// the page. A 400 means our request schema no longer matches the service
// (logged as a bug, strategy skipped for this call); a 403 means the target
// site is unsupported by the service, permanent for this URL this run.
func (s *ExtractionService) Fetch(ctx context.Context, target string) Result {
	if s.apiKey == "" {
		return failure(s.Name(), FailureUnsupported, "extraction service not configured")
	}

	payload, err := json.Marshal(scrapeRequest{
		URL:     target,
		Formats: []string{"markdown", "html"},
		Timeout: s.timeout.Milliseconds(),
	})
	if err != nil {
		return failure(s.Name(), FailureUnsupported, fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return failure(s.Name(), FailureInvalidURL, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return failure(s.Name(), FailureTransport, fmt.Sprintf("post: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below
	case resp.StatusCode == http.StatusBadRequest:
		// Our request carried a field the service does not recognize.
		// That is a caller-side schema bug, not a property of the URL.
		s.logger.Warn("extraction service rejected request schema",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
		)
		return failure(s.Name(), FailureUnsupported, "request schema rejected")
	case resp.StatusCode == http.StatusForbidden:
		return failure(s.Name(), FailureUnsupported, "target site not supported by extraction service")
	case resp.StatusCode == http.StatusTooManyRequests:
		return failure(s.Name(), FailureRateLimited, "extraction service rate limit")
	default:
		return failure(s.Name(), FailureTransport, fmt.Sprintf("bad status: %s", resp.Status))
	}

	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return failure(s.Name(), FailureTransport, fmt.Sprintf("decode response: %v", err))
	}
	if !body.Success || body.Data == nil {
		return failure(s.Name(), FailureUnsupported, "extraction service returned no data")
	}

	var data scrapeData
	decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &data,
		TagName: "json",
	})
	if err := decoder.Decode(body.Data); err != nil {
		return failure(s.Name(), FailureUnsupported, fmt.Sprintf("decode data payload: %v", err))
	}

	text := data.Markdown
	if text == "" {
		text = data.HTML
	}
	if text == "" {
		return failure(s.Name(), FailureUnsupported, "no content in extraction response")
	}

	return Result{Strategy: s.Name(), Text: text}
}
