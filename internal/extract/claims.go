// Package extract turns loosely structured markdown into candidate claims
// paired with evidence quotes. Extraction is pure and deterministic: it makes
// no model calls and touches no storage, so alternate strategies can be
// swapped in behind the Extractor interface.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
	"golang.org/x/net/html"
)

// UnknownLocator marks a claim whose source could not be resolved
const UnknownLocator = "unknown"

const (
	minClaimChars        = 8
	minFallbackWords     = 6
	maxFallbackSentences = 5
	warningClaimPreview  = 120
	noCandidatesWarning  = "No claim candidates extracted from file content."
	missingQuotePrefix   = "Missing direct quote for claim: "
	missingLocatorPrefix = "Missing source locator for claim: "
)

// Candidate is one extracted claim with its best-matching evidence
type Candidate struct {
	Text          string
	EvidenceQuote string // empty when no quote was found
	SourceLocator string // UnknownLocator when unresolved
}

// Result is everything extracted from one file
type Result struct {
	Claims     []Candidate
	Tags       []string
	Confidence model.Confidence
	Related    []string
	Warnings   []string // provenance gaps; never fatal
}

// Extractor turns file content into candidate claims
type Extractor interface {
	Extract(content string) Result
}

// MarkdownExtractor extracts claims from list items, "Claim:" lines, and
// block quotes in markdown knowledge files.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates the default heuristic extractor
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

var listItem = regexp.MustCompile(`^(?:-|\*|\d+\.)\s+(.+)$`)

// Extract extracts claims from markdown content
func (e *MarkdownExtractor) Extract(content string) Result {
	fm, body := ParseFrontmatter(content)
	quotes := ExtractQuotes(body)
	lines := claimLines(body)

	result := Result{
		Tags:       fm.Tags,
		Confidence: fm.Confidence,
		Related:    fm.Related,
	}

	for _, text := range lines {
		quote := ChooseQuote(text, quotes)
		locator := quote.Source
		if locator == "" {
			locator = fm.Source
		}
		if locator = strings.TrimSpace(locator); locator == "" {
			locator = UnknownLocator
		}

		preview := textutil.Truncate(text, warningClaimPreview)
		if quote.Text == "" {
			result.Warnings = append(result.Warnings, missingQuotePrefix+preview)
		}
		if locator == UnknownLocator {
			result.Warnings = append(result.Warnings, missingLocatorPrefix+preview)
		}

		result.Claims = append(result.Claims, Candidate{
			Text:          text,
			EvidenceQuote: quote.Text,
			SourceLocator: locator,
		})
	}

	if len(result.Claims) == 0 {
		result.Warnings = append(result.Warnings, noCandidatesWarning)
	}

	return result
}

// claimLines collects structured claim statements, falling back to plain
// sentences when the body has none.
func claimLines(body string) []string {
	var claims []string
	section := ""

	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if strings.HasPrefix(stripped, "#") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimLeft(stripped, "#")))
			continue
		}

		if m := listItem.FindStringSubmatch(stripped); m != nil {
			text := strings.TrimSpace(m[1])
			if strings.HasPrefix(text, "[[") || strings.HasPrefix(section, "related") {
				continue
			}
			if text = plainText(text); len(text) >= minClaimChars {
				claims = append(claims, text)
			}
			continue
		}

		lower := strings.ToLower(stripped)
		if strings.HasPrefix(lower, "**claim**") || strings.HasPrefix(lower, "claim:") {
			_, after, _ := strings.Cut(stripped, ":")
			if text := plainText(strings.TrimSpace(after)); len(text) >= minClaimChars {
				claims = append(claims, text)
			}
		}
	}

	if len(claims) > 0 {
		return dedupe(claims)
	}
	return fallbackSentences(body)
}

// fallbackSentences splits plain lines into sentences and keeps the first
// few long enough to read as statements.
func fallbackSentences(body string) []string {
	var sentences []string
	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.ContainsAny(stripped[:1], "#>-*") {
			continue
		}
		for _, s := range splitSentences(stripped) {
			if s = strings.TrimSpace(s); len(strings.Fields(s)) >= minFallbackWords {
				sentences = append(sentences, plainText(s))
			}
		}
	}
	if len(sentences) > maxFallbackSentences {
		sentences = sentences[:maxFallbackSentences]
	}
	return dedupe(sentences)
}

// splitSentences splits after a terminator that is followed by whitespace
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				sentences = append(sentences, text[start:i+1])
				start = i + 1
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// plainText drops inline HTML tags and comments, keeping their text.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var buf strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(strings.Join(strings.Fields(buf.String()), " "))
		case html.TextToken:
			buf.Write(z.Text())
		}
	}
}

// dedupe removes repeated strings, preserving first occurrence order
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	unique := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			unique = append(unique, item)
		}
	}
	return unique
}

// IsMissingQuote reports whether a warning was raised for a claim without evidence
func IsMissingQuote(warning string) bool {
	return strings.HasPrefix(warning, missingQuotePrefix)
}

// String implements fmt.Stringer for log output
func (c Candidate) String() string {
	return fmt.Sprintf("%q [%s]", textutil.Truncate(c.Text, 60), c.SourceLocator)
}
