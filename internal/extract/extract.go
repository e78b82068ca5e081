// Package extract recovers the question text, submission URL and optional data URL from a quiz page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrExtraction wraps every failure to produce a Page.
var ErrExtraction = errors.New("extraction failed")

// maxPageBytes bounds how much markup is read from a quiz page.
const maxPageBytes = 10 << 20

// Kind identifies how the question is embedded in a page.
type Kind string

const (
	// KindRendered pages show the question as visible text after scripts run.
	KindRendered Kind = "rendered"
	// KindEncodedScript pages carry the question as a base64 literal passed to atob in an inline script.
	KindEncodedScript Kind = "encoded_script"
)

// Page is the outcome of a successful extraction.
type Page struct {
	URL          string `json:"url"`
	Kind         Kind   `json:"kind"`
	QuestionText string `json:"question_text"`
	SubmitURL    string `json:"submit_url"`
	DataURL      string `json:"data_url,omitempty"`
}

// Renderer executes a page's scripts and returns the resulting markup.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Extractor turns quiz URLs into Pages.
type Extractor struct {
	client   *http.Client
	renderer Renderer
	detector Detector
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRenderer enables rendered-text extraction. Without one, pages that are not
// encoded-script pages cannot be extracted.
func WithRenderer(r Renderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithDetector replaces the default ScriptDetector.
func WithDetector(d Detector) Option {
	return func(e *Extractor) { e.detector = d }
}

// New creates an Extractor that fetches pages with client.
func New(client *http.Client, opts ...Option) *Extractor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Extractor{client: client, detector: ScriptDetector{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasRenderer reports whether rendered-text extraction is available.
func (e *Extractor) HasRenderer() bool {
	return e.renderer != nil
}

// Extract fetches pageURL and extracts the question from it. A detector forced
// to KindRendered skips the direct fetch, and a failed direct fetch falls back
// to the renderer when one is configured.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Page, error) {
	if isForced(e.detector, KindRendered) && e.renderer != nil {
		return e.render(ctx, pageURL)
	}

	markup, err := fetch(ctx, e.client, pageURL)
	if err != nil {
		if e.renderer != nil && ctx.Err() == nil && !isForced(e.detector, KindEncodedScript) {
			slog.Debug("direct fetch failed, rendering instead", "url", pageURL, "error", err)
			return e.render(ctx, pageURL)
		}
		return nil, fmt.Errorf("%w: fetch page: %w", ErrExtraction, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", ErrExtraction, err)
	}

	switch kind := e.detector.Detect(doc); kind {
	case KindEncodedScript:
		return extractEncoded(pageURL, doc)
	case KindRendered:
		if e.renderer == nil {
			return nil, fmt.Errorf("%w: no question content: page has no encoded script and no renderer is configured", ErrExtraction)
		}
		return e.render(ctx, pageURL)
	default:
		return nil, fmt.Errorf("%w: unknown page kind %q", ErrExtraction, kind)
	}
}

func (e *Extractor) render(ctx context.Context, pageURL string) (*Page, error) {
	rendered, err := e.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: render page: %w", ErrExtraction, err)
	}
	return extractRendered(pageURL, rendered)
}

func isForced(d Detector, kind Kind) bool {
	forced, ok := d.(ForcedDetector)
	return ok && Kind(forced) == kind
}

func fetch(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
