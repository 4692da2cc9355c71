package phone

import (
	"strings"
	"testing"
)

func TestNormalizeE164(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		region string
		want   string
	}{
		{name: "international with plus", raw: "+1 650-253-0000", want: "16502530000"},
		{name: "bare international digits", raw: "16502530000", region: "US", want: "16502530000"},
		{name: "national with region", raw: "(650) 253-0000", region: "US", want: "16502530000"},
		{name: "whitespace trimmed", raw: "  +1 650 253 0000  ", want: "16502530000"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeE164(tt.raw, tt.region)
			if err != nil {
				t.Fatalf("NormalizeE164(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if strings.HasPrefix(got, "+") {
				t.Fatalf("result keeps plus prefix: %q", got)
			}
		})
	}
}

func TestNormalizeE164Invalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "12", "not a number", "+1 111-111-1111"} {
		if _, err := NormalizeE164(raw, "US"); err == nil {
			t.Fatalf("NormalizeE164(%q) accepted", raw)
		}
	}
}

func TestFormatDisplay(t *testing.T) {
	t.Parallel()
	got := FormatDisplay("16502530000", "US")
	if !strings.HasPrefix(got, "+1") {
		t.Fatalf("FormatDisplay = %q", got)
	}
	// Unparseable input comes back unchanged.
	if got := FormatDisplay("garbage", ""); got != "garbage" {
		t.Fatalf("FormatDisplay(garbage) = %q", got)
	}
}
