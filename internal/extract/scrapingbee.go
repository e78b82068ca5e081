package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ScrapingBeeEndpoint is the public rendering API.
const ScrapingBeeEndpoint = "https://app.scrapingbee.com/api/v1/"

// ScrapingBee renders pages through the ScrapingBee API with JavaScript enabled.
type ScrapingBee struct {
	client   *http.Client
	apiKey   string
	endpoint string
}

// NewScrapingBee creates a renderer. An empty endpoint selects ScrapingBeeEndpoint.
func NewScrapingBee(client *http.Client, apiKey, endpoint string) *ScrapingBee {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = ScrapingBeeEndpoint
	}
	return &ScrapingBee{client: client, apiKey: apiKey, endpoint: endpoint}
}

func (s *ScrapingBee) Render(ctx context.Context, pageURL string) (string, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("url", pageURL)
	q.Set("render_js", "true")

	target := s.endpoint
	if strings.Contains(target, "?") {
		target += "&" + q.Encode()
	} else {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		// The request URL carries the API key; keep it out of the error text.
		if uerr, ok := err.(*url.Error); ok {
			return "", fmt.Errorf("scrapingbee request: %w", uerr.Err)
		}
		return "", fmt.Errorf("scrapingbee request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read scrapingbee response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("scrapingbee returned status %d: %s", resp.StatusCode, snippet(body))
	}
	return string(body), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
