package extract

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var absoluteURL = regexp.MustCompile("https?://[^\\s\"'<>`()\\[\\]{}]+")

func extractEncoded(pageURL string, doc *goquery.Document) (*Page, error) {
	script, ok := firstInlineScript(doc)
	if !ok {
		return nil, fmt.Errorf("%w: no question content: page has no inline script", ErrExtraction)
	}
	m := atobCall.FindStringSubmatch(script)
	if m == nil {
		return nil, fmt.Errorf("%w: inline script has no atob payload", ErrExtraction)
	}
	payload := m[1] + m[2] + m[3]

	decoded, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode atob payload: %v", ErrExtraction, err)
	}
	text := strings.TrimSpace(decoded)
	if text == "" {
		return nil, fmt.Errorf("%w: no question content: atob payload is empty", ErrExtraction)
	}

	urls := findURLs(text)
	if len(urls) < 2 {
		return nil, fmt.Errorf("%w: decoded question has %d URL(s), want at least 2", ErrExtraction, len(urls))
	}
	page := &Page{URL: pageURL, Kind: KindEncodedScript, QuestionText: text}
	for _, u := range urls {
		if strings.Contains(u, "/submit") {
			page.SubmitURL = u
			break
		}
	}
	if page.SubmitURL == "" {
		return nil, fmt.Errorf("%w: decoded question has no /submit URL", ErrExtraction)
	}
	for _, u := range urls {
		if u != page.SubmitURL && isDataURL(u) {
			page.DataURL = u
			break
		}
	}
	return page, nil
}

// decodeBase64 accepts the standard and URL-safe alphabets, padded or not, ignoring whitespace.
func decodeBase64(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return string(b), nil
		}
		lastErr = err
	}
	return "", lastErr
}

// findURLs returns absolute URLs in order of first appearance, without duplicates.
func findURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, u := range absoluteURL.FindAllString(text, -1) {
		u = trimURL(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?'\"")
}

func isDataURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, ".pdf") || strings.Contains(lower, ".csv") || strings.Contains(lower, "/data")
}
