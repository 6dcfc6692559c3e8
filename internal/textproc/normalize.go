package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/unicode/norm"
)

// LanguageAuto is used when detection confidence is low or the script is
// ambiguous.
const LanguageAuto = "auto"

// languageSampleSize is how many characters of the prefix feed detection.
const languageSampleSize = 1000

// SourceHint carries what the extractor already knows about a document.
type SourceHint struct {
	SourceType       string
	DeclaredLanguage string
}

// Normalized is the output of Normalize.
type Normalized struct {
	Text     string
	Language string
	Warnings []string
}

var (
	ruleLineRegex   = regexp.MustCompile(`(?m)^[ \t]*[-=]{3,}[ \t]*$`)
	hspaceRegex     = regexp.MustCompile(`[ \t]{2,}`)
	trailingWSRegex = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRunRegex   = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts raw extracted text into clean, language-tagged text.
// It is a pure function: malformed input is repaired and flagged with a
// warning rather than rejected, because partial knowledge still retrieves.
func Normalize(raw string, hint SourceHint) Normalized {
	out := Normalized{}

	text := raw
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
		out.Warnings = append(out.Warnings, "invalid utf-8 sequences removed")
	}

	// Compatibility normalization folds ligatures, full-width forms and
	// other presentation variants that PDF extraction tends to emit.
	text = norm.NFKC.String(text)

	text = stripControl(text)
	text = ruleLineRegex.ReplaceAllString(text, "")
	text = hspaceRegex.ReplaceAllString(text, " ")
	text = trailingWSRegex.ReplaceAllString(text, "")
	text = blankRunRegex.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	out.Text = text
	out.Language = detectLanguage(text, hint)

	if text == "" && raw != "" {
		out.Warnings = append(out.Warnings, "normalization produced empty text")
	}

	return out
}

// stripControl removes control characters, keeping newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func detectLanguage(text string, hint SourceHint) string {
	if hint.DeclaredLanguage != "" {
		return hint.DeclaredLanguage
	}

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < 10 {
		return LanguageAuto
	}

	sample := trimmed
	if runes := []rune(sample); len(runes) > languageSampleSize {
		sample = string(runes[:languageSampleSize])
	}

	info := whatlanggo.Detect(sample)
	if !info.IsReliable() {
		return LanguageAuto
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return LanguageAuto
	}
	return code
}
