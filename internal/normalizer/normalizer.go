// Package normalizer strips bank noise from transaction descriptions and
// counterparty names and provides the word-boundary keyword test every
// matcher stage uses.
//
// Clean removes, in order: wallet and payment-processor names, Dutch
// payment-method phrases, dates, times, bank jargon codes (with the code
// that follows them), IBANs and standalone numbers of four or more digits. The
// passes repeat until the text stops changing, so Clean is idempotent.
//
// Example usage:
//
//	cleaned := normalizer.Clean("BEA 12:00 24-12-2024 SHELL UTRECHT NR 12345 PAS 678")
//	// cleaned == "SHELL UTRECHT"
//	normalizer.MatchesKeyword(cleaned, "shell") // true
//	normalizer.MatchesKeyword("SHELLFISH", "shell") // false
package normalizer

import (
	"regexp"
	"strings"
	"sync"
)

var (
	processorPattern = regexp.MustCompile(`(?i)\b(?:apple\s+pay|google\s+pay|samsung\s+pay|garmin\s+pay|via\s+(?:mollie|adyen|stripe|buckaroo|pay\.nl|multisafepay|ccv|worldline|sumup)|mollie|adyen|stripe|buckaroo|pay\.nl|multisafepay|sumup|worldline|ccv)\b`)

	paymentPhrasePattern = regexp.MustCompile(`(?i)\b(?:betaalautomaat|geldautomaat|pasnummer|contactloos|betaalpas|ideal\s+betaling|ideal|overboeking|incasso|machtiging|periodieke\s+overb(?:oeking)?|omschrijving|naam|kenmerk)\b[:]?`)

	datePatterns = []*regexp.Regexp{
		// 24-12-2024, 24/12/24, 24.12.2024
		regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`),
		// 2024-12-24, 2024/12/24
		regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`),
		// 24 dec 2024, 24DEC24
		regexp.MustCompile(`(?i)\b\d{1,2}\s?(?:jan|feb|mrt|mar|apr|mei|may|jun|jul|aug|sep|okt|oct|nov|dec)[a-z]*\s?\d{2,4}\b`),
	}

	timePattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2})?\b`)

	jargonPattern = regexp.MustCompile(`(?i)\b(?:sepa|bea|gea|pas|ref|iban|bic|nr|trtp|eref|marf|csid|remi|term|transactie|betaling|terminal)\b[:./]?(?:\s*[0-9A-Z]*[0-9][0-9A-Z]*\b)?`)

	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)

	longNumberPattern = regexp.MustCompile(`\b\d{4,}\b`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// edgePunctuation is trimmed from both ends after the patterns ran.
const edgePunctuation = " \t,;:-*/.|#"

// Clean returns text with processor names, payment phrases, dates, times,
// jargon codes and long numbers removed and whitespace collapsed.
func Clean(text string) string {
	current := cleanOnce(text)
	for {
		next := cleanOnce(current)
		if next == current {
			return current
		}
		current = next
	}
}

// cleanOnce runs every removal pass once. Past the first pass a changed result
// is always shorter than its input, which bounds the loop in Clean.
func cleanOnce(text string) string {
	s := processorPattern.ReplaceAllString(text, " ")
	s = paymentPhrasePattern.ReplaceAllString(s, " ")
	for _, p := range datePatterns {
		s = p.ReplaceAllString(s, " ")
	}
	s = timePattern.ReplaceAllString(s, " ")
	s = jargonPattern.ReplaceAllString(s, " ")
	s = ibanPattern.ReplaceAllString(s, " ")
	s = longNumberPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.Trim(s, edgePunctuation)
}

var keywordCache sync.Map

// MatchesKeyword reports whether keyword occurs in text as whole tokens,
// ignoring case. A keyword boundary is any rune that is not a letter or digit,
// or the start/end of text.
func MatchesKeyword(text, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || text == "" {
		return false
	}
	return keywordPattern(keyword).MatchString(text)
}

func keywordPattern(keyword string) *regexp.Regexp {
	key := strings.ToLower(keyword)
	if cached, ok := keywordCache.Load(key); ok {
		return cached.(*regexp.Regexp)
	}

	parts := strings.Fields(regexp.QuoteMeta(key))
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(parts, `\s+`) + `(?:$|[^\p{L}\p{N}])`)
	keywordCache.Store(key, re)
	return re
}

// ContainsEither reports whether either string contains the other, ignoring
// case. Empty strings never match.
func ContainsEither(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
