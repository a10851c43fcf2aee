// Package preprocess turns raw inquiry text into the canonical form consumed
// by every predictor.
package preprocess

import (
	"regexp"
	"strings"

	"inquiry_server/pkg/apperr"
)

const (
	// MaxCanonicalLen bounds the combined canonical text. When the combined
	// text exceeds it, the body tail is truncated and the subject preserved.
	MaxCanonicalLen = 10500

	maxSubjectLen = 500
)

var (
	htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)
	urlPattern     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)
	emailPattern   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// Canonical is the normalizer output. Combined is the single bounded string
// used as model input; Subject and Body are kept separately because the
// rule-based category scorer weights subject matches higher.
type Canonical struct {
	Subject  string
	Body     string
	Combined string
}

// Normalize cleans the raw subject and body and combines them into canonical
// text. Deterministic and side-effect free. Fails only when both subject and
// body are empty after cleaning.
func Normalize(subject, body string) (*Canonical, error) {
	subj := clean(subject)
	bod := clean(body)

	if subj == "" && bod == "" {
		return nil, apperr.InvalidInput("inquiry", "subject and body are empty after normalization")
	}

	// Bound the subject first so a runaway subject cannot starve the body.
	if r := []rune(subj); len(r) > maxSubjectLen {
		subj = string(r[:maxSubjectLen])
	}

	// Truncate the body tail so the combined text fits the bound while the
	// subject prefix is preserved intact.
	budget := MaxCanonicalLen - len([]rune(subj))
	if subj != "" && bod != "" {
		budget-- // separator
	}
	if r := []rune(bod); len(r) > budget {
		if budget < 0 {
			budget = 0
		}
		bod = strings.TrimSpace(string(r[:budget]))
	}

	combined := subj
	if subj != "" && bod != "" {
		combined += " "
	}
	combined += bod

	return &Canonical{Subject: subj, Body: bod, Combined: combined}, nil
}

// clean applies the normalization steps in order: strip HTML, mask URLs and
// email addresses, collapse whitespace, trim.
func clean(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, "<URL>")
	text = emailPattern.ReplaceAllString(text, "<EMAIL>")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
