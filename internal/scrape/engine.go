package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scraperhub/internal/models"
)

// Rule extracts one piece of data from a fetched page
type Rule struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute"` // text, href, src, html; default text
	Multiple  bool   `json:"multiple"`
}

// Request describes one page scrape
type Request struct {
	URL          string          `json:"url"`
	WaitTime     int             `json:"wait_time"` // extra seconds of fetch budget, capped at 60
	ExtractRules map[string]Rule `json:"extract_rules"`

	// Accepted for config compatibility; without a rendering backend no
	// screenshot is ever produced.
	TakeScreenshot bool `json:"take_screenshot"`
}

const (
	maxWaitTime         = 60
	defaultBatchWorkers = 5
	maxBodyBytes        = 10 << 20
)

// Engine fetches pages over plain HTTP and extracts data with CSS selectors
type Engine struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewEngine creates a page scrape engine
func NewEngine(timeout time.Duration, userAgent string, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
	}
}

// Scrape fetches one URL. Failures land inside the result rather than in an
// error so callers can relay them to Telegram unchanged.
func (e *Engine) Scrape(ctx context.Context, req Request) models.PageResult {
	result := models.PageResult{
		URL:       req.URL,
		Timestamp: time.Now().UTC(),
	}

	wait := req.WaitTime
	if wait > maxWaitTime {
		wait = maxWaitTime
	}
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout+time.Duration(wait)*time.Second)
		defer cancel()
	}

	body, err := e.fetch(ctx, req.URL)
	if err != nil {
		e.logger.Warn("Scrape failed", zap.String("url", req.URL), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.HTMLLength = len(body)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("failed to parse page: %v", err)
		return result
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if len(req.ExtractRules) > 0 {
		result.Data = extract(doc, req.ExtractRules)
	}
	result.Success = true
	return result
}

// ScrapeBatch fetches up to len(reqs) URLs with bounded concurrency,
// preserving input order in the results
func (e *Engine) ScrapeBatch(ctx context.Context, reqs []Request, workers int) []models.PageResult {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	results := make([]models.PageResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.Scrape(ctx, req)
			return nil
		})
	}
	g.Wait()
	return results
}

func (e *Engine) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

func extract(doc *goquery.Document, rules map[string]Rule) map[string]any {
	data := make(map[string]any, len(rules))
	for name, rule := range rules {
		sel := doc.Find(rule.Selector)
		if rule.Multiple {
			var values []string
			sel.Each(func(_ int, s *goquery.Selection) {
				values = append(values, extractOne(s, rule.Attribute))
			})
			data[name] = values
			continue
		}
		if sel.Length() == 0 {
			data[name] = ""
			continue
		}
		data[name] = extractOne(sel.First(), rule.Attribute)
	}
	return data
}

func extractOne(s *goquery.Selection, attribute string) string {
	switch attribute {
	case "", "text":
		return strings.TrimSpace(s.Text())
	case "html":
		html, _ := s.Html()
		return html
	default:
		return s.AttrOr(attribute, "")
	}
}
