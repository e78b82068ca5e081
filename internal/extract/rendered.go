package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var postAnswerTo = regexp.MustCompile(`(?i)post\s+your\s+answer\s+to\s+(https?://\S+)`)

const blockElements = "p, div, li, tr, pre, h1, h2, h3, h4, h5, h6, section, article, header, footer, blockquote"

func extractRendered(pageURL, markup string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse rendered page: %v", ErrExtraction, err)
	}
	doc.Find("script, style, noscript, template").Remove()
	doc.Find("br").AfterHtml("\n")
	doc.Find(blockElements).AppendHtml("\n")

	text := visibleText(doc.Find("body"))
	if text == "" {
		text = visibleText(doc.Selection)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: no question content: rendered page has no text", ErrExtraction)
	}

	m := postAnswerTo.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: could not find the submission URL on the page", ErrExtraction)
	}
	page := &Page{
		URL:          pageURL,
		Kind:         KindRendered,
		QuestionText: text,
		SubmitURL:    trimURL(strings.TrimRight(m[1], ")]}")),
	}
	for _, u := range findURLs(text) {
		if u != page.SubmitURL && isDataURL(u) {
			page.DataURL = u
			break
		}
	}
	return page, nil
}

// visibleText approximates innerText: block text with runs of spaces collapsed and blank lines dropped.
func visibleText(sel *goquery.Selection) string {
	var lines []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
