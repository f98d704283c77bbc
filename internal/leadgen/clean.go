package leadgen

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// invisible reports whether r is a zero-width or bidi-control code point.
func invisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F:
		return true
	case r >= 0x202A && r <= 0x202E:
		return true
	case r == 0xFEFF:
		return true
	}
	return false
}

// CleanPageText prepares fetched page content for the reasoning step:
// collapses long runs of repeated punctuation (markdown tables, dividers),
// strips control and invisible characters, NFKC-normalizes, and collapses
// all whitespace to single spaces.
func CleanPageText(raw string) string {
	if raw == "" {
		return ""
	}

	// Collapse runs of 10 or more identical punctuation characters to one.
	// Shorter runs (ellipses, markdown emphasis) are left intact.
	runes := []rune(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= 10 && (unicode.IsPunct(runes[i]) || unicode.IsSymbol(runes[i])) {
			n = 1
		}
		for k := 0; k < n; k++ {
			b.WriteRune(runes[i])
		}
		i = j
	}

	cleaned := norm.NFKC.String(b.String())

	var out strings.Builder
	out.Grow(len(cleaned))
	space := false
	for _, r := range cleaned {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r) || invisible(r):
			// dropped
		default:
			if space && out.Len() > 0 {
				out.WriteByte(' ')
			}
			space = false
			out.WriteRune(r)
		}
	}
	return out.String()
}

// cleanLeads applies the extraction post-filter: strips brackets and quotes
// from each name and drops entries that degenerate to nothing. Duplicates are
// kept; deduplication happens at aggregation.
func cleanLeads(raw []string) []string {
	var out []string
	for _, lead := range raw {
		clean := strings.TrimSpace(lead)
		clean = strings.Trim(clean, "[]")
		clean = strings.Trim(clean, `'"`)
		clean = strings.TrimSpace(clean)
		switch clean {
		case "", "[]", "None", "null":
			continue
		}
		out = append(out, clean)
	}
	return out
}
