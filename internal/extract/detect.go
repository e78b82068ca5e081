package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// atobCall matches the first atob("...") call, with any JS string quote style.
var atobCall = regexp.MustCompile("atob\\(\\s*(?:\"([^\"]*)\"|'([^']*)'|`([^`]*)`)\\s*\\)")

// Detector decides which extraction mode a fetched page needs.
type Detector interface {
	Detect(doc *goquery.Document) Kind
}

// ScriptDetector picks KindEncodedScript when the first inline script calls atob
// on a string literal, and KindRendered otherwise.
type ScriptDetector struct{}

func (ScriptDetector) Detect(doc *goquery.Document) Kind {
	script, ok := firstInlineScript(doc)
	if ok && atobCall.MatchString(script) {
		return KindEncodedScript
	}
	return KindRendered
}

// ForcedDetector always returns the same kind.
type ForcedDetector Kind

func (f ForcedDetector) Detect(*goquery.Document) Kind {
	return Kind(f)
}

// DetectorForMode maps a mode name (auto, rendered, encoded) to a Detector.
func DetectorForMode(mode string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return ScriptDetector{}, nil
	case "rendered":
		return ForcedDetector(KindRendered), nil
	case "encoded", "encoded_script":
		return ForcedDetector(KindEncodedScript), nil
	}
	return nil, fmt.Errorf("unknown extract mode %q (want auto, rendered or encoded)", mode)
}

// firstInlineScript returns the body of the first script element without a src attribute.
func firstInlineScript(doc *goquery.Document) (string, bool) {
	var body string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, external := s.Attr("src"); external {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		body, found = text, true
		return false
	})
	return body, found
}
