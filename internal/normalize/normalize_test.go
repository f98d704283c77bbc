package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeadName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
		{"simple lowercase", "acme", "acme"},
		{"case folding", "MICROSOFT", "microsoft"},
		{"legal suffixes", "Microsoft Pty Ltd", "microsoft"},
		{"suffix with punctuation", "Acme Pty. Ltd.", "acme"},
		{"inc", "Apple Inc.", "apple"},
		{"corp", "Orica Corp", "orica"},
		{"gmbh", "Siemens GmbH", "siemens"},
		{"generic terms", "BHP Holdings International", "bhp"},
		{"company word", "The Coca-Cola Company", "the coca cola"},
		{"ampersand", "Johnson & Johnson", "johnson johnson"},
		{"accents folded", "Café Olé", "cafe ole"},
		{"multi space collapse", "Acciona   Energy", "acciona energy"},
		{"zero width inside word", "Ac​me", "acme"},
		{"bidi controls", "‪Orica‬", "orica"},
		{"digits kept", "3M", "3m"},
		{"non-ascii dropped", "株式会社", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LeadName(tt.input))
		})
	}
}

func TestLeadNameIdempotent(t *testing.T) {
	inputs := []string{
		"Microsoft Pty Ltd",
		"MICROSOFT",
		"  Acciona   Energy  ",
		"Café Olé Inc.",
		"Johnson & Johnson",
		"Ac​me Corp",
		"",
		"   ",
		"3M Company",
	}
	for _, in := range inputs {
		once := LeadName(in)
		assert.Equal(t, once, LeadName(once), "normalize must be idempotent for %q", in)
	}
}

func TestLeadNameSuffixAndCaseEquivalence(t *testing.T) {
	assert.Equal(t, LeadName("MICROSOFT"), LeadName("Microsoft Pty Ltd"))
	assert.Equal(t, LeadName("acciona energy"), LeadName("Acciona Energy Ltd"))
}

func TestSanitizeColumn(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"bcorp_score", "bcorp_score", true},
		{"b_corp_score", "b_corp_score", true},
		{"Score2024", "Score2024", true},
		{"overall_score", "overall_score", true},
		{"", "", false},
		{"score; DROP TABLE", "", false},
		{"overall score", "", false},
		{"naïve", "", false},
	}
	for _, tt := range tests {
		got, ok := SanitizeColumn(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestDeriveColumn(t *testing.T) {
	assert.Equal(t, "b_corp_2024_present", DeriveColumn("B-Corp 2024", "_present"))
	assert.Equal(t, "harbour_list_present", DeriveColumn("  Harbour List  ", "_present"))
	assert.Equal(t, "dataset_present", DeriveColumn("???", "_present"))
}
