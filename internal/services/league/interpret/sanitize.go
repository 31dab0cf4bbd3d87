// Package interpret is the boundary to the external natural-language
// interpretation and classification services.
//
// The core never trusts what comes back: interpreter output is re-validated
// against an embedded schema before any rule or effect is touched, and the
// classifier fails open so a safety-check outage can never block governance.
package interpret

import (
	"strings"
	"unicode"
)

// MaxProposalChars caps sanitized proposal text sent to the interpreter.
const MaxProposalChars = 2000

// Sanitize strips control characters, collapses whitespace runs, and caps
// the text at MaxProposalChars runes.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := false
	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	cleaned := strings.TrimSpace(b.String())
	runes := []rune(cleaned)
	if len(runes) > MaxProposalChars {
		return string(runes[:MaxProposalChars])
	}
	return cleaned
}
