package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors are removed before text extraction; they carry navigation
// and scripting, not content.
var noiseSelectors = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside",
	".advertisement", ".ads", ".cookie-banner",
}

// contentSelectors are tried in order; the first non-trivial match wins.
var contentSelectors = []string{
	"main", "article", "[role='main']", ".content", "#content", "body",
}

// ParseHTML extracts the title and readable text from an HTML stream.
func ParseHTML(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	for _, selector := range noiseSelectors {
		doc.Find(selector).Remove()
	}

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text = blockText(sel)
		if len(text) >= 50 {
			return title, text, nil
		}
	}
	if text == "" {
		text = blockText(doc.Selection)
	}
	return title, text, nil
}

// blockText renders a selection with paragraph breaks between block
// elements, so downstream chunking sees real paragraph boundaries.
func blockText(sel *goquery.Selection) string {
	var blocks []string
	sel.Find("p, h1, h2, h3, h4, h5, h6, li, td, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return strings.TrimSpace(sel.Text())
	}
	return strings.Join(blocks, "\n\n")
}
