package interpret

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain text untouched", raw: "Make threes worth four", want: "Make threes worth four"},
		{name: "trims surrounding space", raw: "  shorter quarters \n", want: "shorter quarters"},
		{name: "collapses whitespace runs", raw: "longer\t\tshot   clock\n\nplease", want: "longer shot clock please"},
		{name: "strips control characters", raw: "no\x00 hidden\x1b[31m instructions", want: "no hidden [31m instructions"},
		{name: "empty input", raw: "", want: ""},
		{name: "only whitespace", raw: " \t\n ", want: ""},
		{name: "keeps non-ascii", raw: "más tiempo extra", want: "más tiempo extra"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.raw); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("é", MaxProposalChars+500)
	got := Sanitize(long)
	if n := utf8.RuneCountInString(got); n != MaxProposalChars {
		t.Fatalf("rune count = %d, want %d", n, MaxProposalChars)
	}
	if !utf8.ValidString(got) {
		t.Error("cap produced invalid UTF-8")
	}
}
