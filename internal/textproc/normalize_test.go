package textproc

import (
	"strings"
	"testing"
)

func TestNormalizeStripsControlCharacters(t *testing.T) {
	in := "hello\x00world\x07 and\rmore"
	got := Normalize(in, SourceHint{})
	if strings.ContainsAny(got.Text, "\x00\x07\r") {
		t.Fatalf("control characters survived normalization: %q", got.Text)
	}
}

func TestNormalizeCollapsesBlankLines(t *testing.T) {
	in := "para one\n\n\n\n\npara two"
	got := Normalize(in, SourceHint{})
	if got.Text != "para one\n\npara two" {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestNormalizeCollapsesHorizontalWhitespace(t *testing.T) {
	in := "a    b\tc\t\td"
	got := Normalize(in, SourceHint{})
	if got.Text != "a b\tc d" && got.Text != "a b c d" {
		// tab runs collapse; single tabs are preserved as-is
		t.Fatalf("unexpected text: %q", got.Text)
	}
	if strings.Contains(got.Text, "  ") {
		t.Fatalf("double space survived: %q", got.Text)
	}
}

func TestNormalizeRemovesRuleLines(t *testing.T) {
	in := "header\n----------\nbody\n==========\nfooter"
	got := Normalize(in, SourceHint{})
	if strings.Contains(got.Text, "---") || strings.Contains(got.Text, "===") {
		t.Fatalf("decorative rules survived: %q", got.Text)
	}
	for _, want := range []string{"header", "body", "footer"} {
		if !strings.Contains(got.Text, want) {
			t.Fatalf("content %q lost: %q", want, got.Text)
		}
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	got := Normalize("", SourceHint{})
	if got.Text != "" {
		t.Fatalf("expected empty text, got %q", got.Text)
	}
	if got.Language != LanguageAuto {
		t.Fatalf("expected auto language, got %q", got.Language)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("empty input should not warn: %v", got.Warnings)
	}
}

func TestNormalizeInvalidUTF8Warns(t *testing.T) {
	in := "valid prefix " + string([]byte{0xff, 0xfe}) + " valid suffix"
	got := Normalize(in, SourceHint{})
	if len(got.Warnings) == 0 {
		t.Fatal("expected a warning for invalid utf-8")
	}
	if !strings.Contains(got.Text, "valid prefix") || !strings.Contains(got.Text, "valid suffix") {
		t.Fatalf("valid portions lost: %q", got.Text)
	}
}

func TestNormalizeDetectsEnglish(t *testing.T) {
	in := "The quick brown fox jumps over the lazy dog. " +
		"This is a long enough passage of English text for the detector to be confident about the language in use."
	got := Normalize(in, SourceHint{})
	if got.Language != "en" {
		t.Fatalf("expected en, got %q", got.Language)
	}
}

func TestNormalizeShortTextFallsBackToAuto(t *testing.T) {
	got := Normalize("ok", SourceHint{})
	if got.Language != LanguageAuto {
		t.Fatalf("expected auto for short text, got %q", got.Language)
	}
}

func TestNormalizeDeclaredLanguageWins(t *testing.T) {
	got := Normalize("whatever text content here", SourceHint{DeclaredLanguage: "ja"})
	if got.Language != "ja" {
		t.Fatalf("expected declared ja, got %q", got.Language)
	}
}

func TestContentHashNormalizesCase(t *testing.T) {
	if ContentHash("Hello World") != ContentHash("hello world") {
		t.Fatal("hash should be case-insensitive over normalized text")
	}
	if ContentHash("hello") == ContentHash("world") {
		t.Fatal("distinct content must not collide")
	}
	if ContentHash("") != "" {
		t.Fatal("empty content hashes to empty string")
	}
}
