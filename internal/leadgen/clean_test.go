package leadgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPageText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "Acme  Corp\n\nPty\tLtd", "Acme Corp Pty Ltd"},
		{"strips control chars", "Acme\x00Corp\x07", "AcmeCorp"},
		{"strips zero width", "Acme​Corp", "AcmeCorp"},
		{"collapses divider runs", "Header " + strings.Repeat("-", 40) + " Body", "Header - Body"},
		{"keeps short punct runs", "wait... what", "wait... what"},
		{"nfkc normalizes", "Ａcme", "Acme"},
		{"markdown table", "| Name " + strings.Repeat("|", 12) + " Score |", "| Name | Score |"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPageText(tt.in))
		})
	}
}

func TestCleanLeads(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"strips artifacts and keeps duplicates",
			[]string{"Acme Corp", "[]", "", "Acme Corp "},
			[]string{"Acme Corp", "Acme Corp"},
		},
		{
			"drops literal junk",
			[]string{"None", "null", "''", `""`},
			nil,
		},
		{
			"unwraps quotes and brackets",
			[]string{`["Orica"]`, "'Dyno Nobel'", `"BHP Group"`},
			[]string{"Orica", "Dyno Nobel", "BHP Group"},
		},
		{
			"trims whitespace",
			[]string{"  Acciona Energy  "},
			[]string{"Acciona Energy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanLeads(tt.in))
		})
	}
}
