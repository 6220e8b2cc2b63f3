package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/claimledger/internal/textutil"
)

// Quote is a block-quoted evidence line and its optional inline source
type Quote struct {
	Text   string
	Source string
}

var sourceAnnotation = regexp.MustCompile(`(?i)\(Source:\s*([^)]+)\)`)

// ExtractQuotes returns every block-quoted line of body as evidence, pairing
// it with an inline "(Source: X)" annotation when present.
func ExtractQuotes(body string) []Quote {
	var quotes []Quote

	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if !strings.HasPrefix(stripped, ">") {
			continue
		}

		text := strings.TrimSpace(strings.TrimLeft(stripped, ">"))
		source := ""
		if m := sourceAnnotation.FindStringSubmatch(text); m != nil {
			source = strings.TrimSpace(m[1])
			text = strings.TrimSpace(sourceAnnotation.ReplaceAllString(text, ""))
		}
		text = strings.TrimSpace(strings.Trim(plainText(text), `"`))
		if text != "" {
			quotes = append(quotes, Quote{Text: text, Source: source})
		}
	}

	return quotes
}

// ChooseQuote picks the quote sharing the most tokens with the claim.
// Ties keep the first quote; no quotes yields the zero Quote.
func ChooseQuote(claim string, quotes []Quote) Quote {
	claimTokens := textutil.Tokenize(claim)
	best := Quote{}
	bestScore := -1

	for _, q := range quotes {
		score := textutil.Overlap(claimTokens, textutil.Tokenize(q.Text))
		if score > bestScore {
			best = q
			bestScore = score
		}
	}

	return best
}
