package ai

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and slices text in model tokens. Chunk budgets must be
// measured with the same tokenizer the embedding model uses; a mismatch
// silently degrades search quality, so construction fails loudly instead of
// falling back.
type Tokenizer interface {
	Count(text string) int
	Split(text string, maxTokens int) []string
	Tail(text string, maxTokens int) string
}

// TiktokenTokenizer wraps a tiktoken encoding (cl100k_base by default).
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTokenizer loads the named tiktoken encoding.
func NewTokenizer(encodingName string) (*TiktokenTokenizer, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding %q: %w", encodingName, err)
	}
	return &TiktokenTokenizer{encoding: enc, name: encodingName}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Split cuts text into pieces of at most maxTokens tokens each.
func (t *TiktokenTokenizer) Split(text string, maxTokens int) []string {
	if text == "" || maxTokens <= 0 {
		return nil
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return []string{text}
	}
	pieces := make([]string, 0, (len(tokens)+maxTokens-1)/maxTokens)
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := strings.TrimSpace(t.encoding.Decode(tokens[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// Tail returns the trailing maxTokens tokens of text.
func (t *TiktokenTokenizer) Tail(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.TrimSpace(t.encoding.Decode(tokens[len(tokens)-maxTokens:]))
}

func (t *TiktokenTokenizer) Name() string { return t.name }
