package nova

import (
	"reflect"
	"testing"

	"github.com/szaher/nova/internal/iteration"
)

func TestParseExperts(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name: "bullets and preamble",
			text: "We need the following experts:\n- Marketing\n* Data Science\n• Customer Success.",
			want: []string{"Marketing", "Data Science", "Customer Success"},
		},
		{
			name: "numbered with bold",
			text: "1. **Finance**\n2) Legal:\n3. Operations",
			want: []string{"Finance", "Legal", "Operations"},
		},
		{
			name: "short lines dropped",
			text: "AI\n- UX\nEconomics",
			want: []string{"Economics"},
		},
		{
			name: "preamble tokens case-insensitive",
			text: "Domains:\nEXPERTISE REQUIRED\nSpecialists in:\nRequired roles\nExpert panel\nPsychology",
			want: []string{"Psychology"},
		},
		{
			name: "duplicates keep first position",
			text: "Marketing\nSales\nmarketing\nMARKETING\nSales.",
			want: []string{"Marketing", "Sales"},
		},
		{
			name: "continuity key is reserved",
			text: "Discussion Continuity Expert\nStatistics",
			want: []string{"Statistics"},
		},
		{
			name:  "limit",
			text:  "Marketing\nSales\nLegal",
			limit: 2,
			want:  []string{"Marketing", "Sales"},
		},
		{
			name: "nothing usable",
			text: "",
			want: []string{},
		},
		{
			name: "leading digits kept in names",
			text: "- 3D Printing",
			want: []string{"3D Printing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExperts(tt.text, nil, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseExperts = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileExpertFilter(t *testing.T) {
	filter, err := CompileExpertFilter(`len(line) >= 2 && !(lower startsWith "experts")`)
	if err != nil {
		t.Fatalf("CompileExpertFilter: %v", err)
	}
	got := ParseExperts("Experts:\n- AI\n- UX\n- Domain-Driven Design", filter, 0)
	want := []string{"AI", "UX", "Domain-Driven Design"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseExperts = %q, want %q", got, want)
	}

	for _, src := range []string{"", "line +", `len(line)`} {
		if _, err := CompileExpertFilter(src); err == nil {
			t.Errorf("CompileExpertFilter(%q) succeeded, want error", src)
		}
	}
}

func TestSplitSummary(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantSummary string
		wantNext    string
	}{
		{
			name:        "markdown delimiter",
			text:        "Progress so far.\n## Next Steps\n1. X\n2. Y",
			wantSummary: "Progress so far.",
			wantNext:    "1. X\n2. Y",
		},
		{
			name:        "delimiter only",
			text:        "## Next Steps\n1. X\n2. Y",
			wantSummary: "",
			wantNext:    "1. X\n2. Y",
		},
		{
			name:        "plain delimiter",
			text:        "Summary text\nNext Steps:\n- ship it",
			wantSummary: "Summary text",
			wantNext:    "- ship it",
		},
		{
			name:        "markdown delimiter preferred",
			text:        "A\nNext Steps:\nB\n## Next Steps\nC",
			wantSummary: "A\nNext Steps:\nB",
			wantNext:    "C",
		},
		{
			name:        "inline mention is not a delimiter",
			text:        "Next Steps: ship it\nmore",
			wantSummary: "Next Steps: ship it\nmore",
			wantNext:    iteration.NextStepsUndefined,
		},
		{
			name:        "no delimiter",
			text:        "  Everything in one block.\n",
			wantSummary: "  Everything in one block.\n",
			wantNext:    iteration.NextStepsUndefined,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, next := SplitSummary(tt.text)
			if summary != tt.wantSummary || next != tt.wantNext {
				t.Errorf("SplitSummary = (%q, %q), want (%q, %q)", summary, next, tt.wantSummary, tt.wantNext)
			}
		})
	}
}
