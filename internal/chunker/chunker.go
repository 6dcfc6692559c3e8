package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"knowledge-platform/internal/textproc"
	"knowledge-platform/models"
)

// Tokenizer is the slice of the model tokenizer the chunker needs.
type Tokenizer interface {
	Count(text string) int
	Split(text string, maxTokens int) []string
	Tail(text string, maxTokens int) string
}

// Chunker splits normalized text into token-bounded, overlapping fragments
// aligned to paragraph and sentence boundaries.
type Chunker struct {
	targetTokens   int
	overlapTokens  int
	tok            Tokenizer
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

// New builds a Chunker. Overlap must be strictly less than the target budget;
// equal or larger overlap would re-emit the same text forever.
func New(targetTokens, overlapTokens int, tok Tokenizer) (*Chunker, error) {
	if targetTokens <= 0 {
		return nil, fmt.Errorf("target tokens must be positive, got %d", targetTokens)
	}
	if overlapTokens < 0 || overlapTokens >= targetTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, %d), got %d", targetTokens, overlapTokens)
	}
	if tok == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	return &Chunker{
		targetTokens:   targetTokens,
		overlapTokens:  overlapTokens,
		tok:            tok,
		sentenceRegex:  regexp.MustCompile(`[.!?]+[\s]+`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}, nil
}

// Chunk produces fragment drafts with dense zero-based indices. Every draft
// satisfies TokenCount <= targetTokens. Empty input yields zero drafts.
func (c *Chunker) Chunk(text string) ([]models.FragmentDraft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	paragraphs := c.splitUnits(text)
	if len(paragraphs) == 0 {
		return nil, nil
	}

	var drafts []models.FragmentDraft
	current := ""

	flush := func() {
		if current == "" {
			return
		}
		drafts = append(drafts, c.draft(current, len(drafts)))
		// Retain the trailing overlap as a lead-in for the next chunk so
		// similarity search keeps local context across the boundary.
		if c.overlapTokens > 0 {
			current = c.tok.Tail(current, c.overlapTokens)
		} else {
			current = ""
		}
	}

	for _, para := range paragraphs {
		candidate := join(current, para)
		if current != "" && c.tok.Count(candidate) > c.targetTokens {
			flush()
			candidate = join(current, para)
			if current != "" && c.tok.Count(candidate) > c.targetTokens {
				// The overlap lead-in itself does not fit next to this
				// paragraph; drop it rather than break the budget.
				candidate = para
			}
		}
		current = candidate
	}
	if strings.TrimSpace(current) != "" {
		// Skip a tail that is pure overlap of the previous chunk.
		if len(drafts) == 0 || current != c.tok.Tail(drafts[len(drafts)-1].Text, c.overlapTokens) {
			drafts = append(drafts, c.draft(current, len(drafts)))
		}
	}

	return drafts, nil
}

// splitUnits breaks text into paragraph-like units, force-splitting any unit
// that alone exceeds the token budget. The budget is a hard invariant, not a
// goal: embedding models impose hard input-length limits.
func (c *Chunker) splitUnits(text string) []string {
	var units []string
	for _, para := range c.paragraphRegex.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if c.tok.Count(para) <= c.targetTokens {
			units = append(units, para)
			continue
		}
		units = append(units, c.forceSplit(para)...)
	}
	return units
}

// forceSplit cuts an oversized paragraph at sentence boundaries, falling back
// to raw token windows for a single sentence that still exceeds the budget.
func (c *Chunker) forceSplit(para string) []string {
	sentences := splitKeepDelims(c.sentenceRegex, para)

	var pieces []string
	current := ""
	for _, sentence := range sentences {
		if c.tok.Count(sentence) > c.targetTokens {
			if strings.TrimSpace(current) != "" {
				pieces = append(pieces, strings.TrimSpace(current))
				current = ""
			}
			pieces = append(pieces, c.tok.Split(sentence, c.targetTokens)...)
			continue
		}
		candidate := current + sentence
		if current != "" && c.tok.Count(candidate) > c.targetTokens {
			pieces = append(pieces, strings.TrimSpace(current))
			candidate = sentence
		}
		current = candidate
	}
	if strings.TrimSpace(current) != "" {
		pieces = append(pieces, strings.TrimSpace(current))
	}
	return pieces
}

func (c *Chunker) draft(text string, index int) models.FragmentDraft {
	return models.FragmentDraft{
		Index:       index,
		Text:        text,
		TokenCount:  c.tok.Count(text),
		CharCount:   utf8.RuneCountInString(text),
		ContentHash: textproc.ContentHash(text),
	}
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}

// splitKeepDelims splits s after each delimiter match so sentence-final
// punctuation stays attached to its sentence.
func splitKeepDelims(re *regexp.Regexp, s string) []string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}
	var parts []string
	prev := 0
	for _, loc := range locs {
		parts = append(parts, s[prev:loc[1]])
		prev = loc[1]
	}
	if prev < len(s) {
		parts = append(parts, s[prev:])
	}
	return parts
}
