// Package normalize produces the canonical deduplication key for lead
// names. Every consumer of lead identity must go through LeadName; ad hoc
// case-folding elsewhere breaks cross-source deduplication.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are legal-entity suffixes and generic terms removed as whole
// words. Matching happens after lowercasing and punctuation stripping, so
// "Pty. Ltd." and "PTY LTD" both reduce to the same tokens.
var stopWords = map[string]struct{}{
	"pty": {}, "ltd": {}, "limited": {},
	"inc": {}, "incorporated": {},
	"corp": {}, "corporation": {},
	"llc": {}, "llp": {}, "lp": {}, "plc": {}, "pllc": {},
	"gmbh": {}, "ag": {}, "sa": {}, "bv": {}, "nv": {},
	"co": {}, "company": {}, "companies": {},
	"holdings": {}, "international": {},
}

// foldTransformer decomposes to NFKD and drops combining marks, turning
// accented letters into their ASCII base characters.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// invisible reports code points that carry no glyph: zero-width spaces and
// joiners, bidi controls, BOM.
func invisible(r rune) bool {
	switch {
	case r >= 0x200b && r <= 0x200f:
		return true
	case r >= 0x202a && r <= 0x202e:
		return true
	case r >= 0x2060 && r <= 0x2064:
		return true
	case r == 0xfeff:
		return true
	}
	return false
}

// LeadName canonicalizes a raw company name into its deduplication key.
// The result is lowercase ASCII [a-z0-9 ] with legal suffixes removed and
// whitespace collapsed. Empty or whitespace-only input yields "".
// LeadName is idempotent: LeadName(LeadName(x)) == LeadName(x).
func LeadName(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// Invisible code points are dropped outright rather than widened to
	// spaces, so "Ac​me" keys the same as "Acme".
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if !invisible(r) {
			b.WriteRune(r)
		}
	}

	folded, _, err := transform.String(foldTransformer, b.String())
	if err != nil {
		folded = b.String()
	}

	folded = strings.ToLower(folded)

	// Everything outside [a-z0-9 ] becomes a space; non-ASCII residue from
	// folding is discarded here too.
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			return r
		}
		if r > unicode.MaxASCII {
			return -1
		}
		return ' '
	}, folded)

	fields := strings.Fields(mapped)
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := stopWords[f]; !drop {
			kept = append(kept, f)
		}
	}

	return strings.Join(kept, " ")
}

// SanitizeColumn validates a user-supplied enrichment column name against
// the allow-list [A-Za-z0-9_]. It returns the name unchanged and true when
// every character passes, or false when the name would need cleaning;
// callers must reject rather than guess at a cleaned form.
func SanitizeColumn(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return "", false
		}
	}
	return name, true
}

// DeriveColumn builds a column identifier from a free-form dataset name by
// lowercasing and mapping every disallowed character to an underscore.
// Used for synthesized presence columns, where the name is ours to choose.
func DeriveColumn(datasetName, suffix string) string {
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return unicode.ToLower(r)
		}
		return '_'
	}, strings.TrimSpace(datasetName))

	// Collapse runs of underscores and trim the ends.
	for strings.Contains(mapped, "__") {
		mapped = strings.ReplaceAll(mapped, "__", "_")
	}
	mapped = strings.Trim(mapped, "_")
	if mapped == "" {
		mapped = "dataset"
	}
	return mapped + suffix
}
