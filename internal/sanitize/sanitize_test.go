package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "agriculture",
			expected: "agriculture",
		},
		{
			name:     "uppercase conversion",
			input:    "Kavinda",
			expected: "kavinda",
		},
		{
			name:     "spaces to underscores",
			input:    "Acme Corp",
			expected: "acme_corp",
		},
		{
			name:     "punctuation stripped",
			input:    "Acme Corp!",
			expected: "acme_corp",
		},
		{
			name:     "dots stripped",
			input:    "acme.com",
			expected: "acmecom",
		},
		{
			name:     "hyphen preserved",
			input:    "Agri-Tech",
			expected: "agri-tech",
		},
		{
			name:     "whitespace run collapsed",
			input:    "  Acme \t  Corp  ",
			expected: "acme_corp",
		},
		{
			name:     "multiple underscores collapsed",
			input:    "foo___bar",
			expected: "foo_bar",
		},
		{
			name:     "underscore next to stripped char",
			input:    "foo_!_bar",
			expected: "foo_bar",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "default",
		},
		{
			name:     "only invalid chars",
			input:    "!!!",
			expected: "default",
		},
		{
			name:     "sinhala preserved",
			input:    "කවින්ද ගොවිපල",
			expected: "කවින්ද_ගොවිපල",
		},
		{
			name:     "tamil preserved",
			input:    "சுனில் கடை",
			expected: "சுனில்_கடை",
		},
		{
			name:     "latin diacritics lowercased",
			input:    "Café Ünïcödé",
			expected: "café_ünïcödé",
		},
		{
			name:     "numbers preserved",
			input:    "Shop 24",
			expected: "shop_24",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Name(tt.input)
			if result != tt.expected {
				t.Errorf("Name(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestName_Idempotent(t *testing.T) {
	inputs := []string{
		"Acme Corp!",
		"Acme_Corp",
		"  __weird--name__ ",
		"Ünïcödé Café",
		"කවින්ද ගොවිපල",
		"a b c d e f",
		strings.Repeat("Long Name ", 20),
		"",
	}

	for _, in := range inputs {
		once := Name(in)
		twice := Name(once)
		if once != twice {
			t.Errorf("Name not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestName_CosmeticVariantsCollide(t *testing.T) {
	if Name("Acme Corp!") != Name("Acme_Corp") {
		t.Errorf("expected %q and %q to sanitize identically", "Acme Corp!", "Acme_Corp")
	}
	if Name("AGRICULTURE") != Name(" agriculture ") {
		t.Error("expected case and whitespace variants to sanitize identically")
	}
}

func TestName_DistinctScriptsDoNotCollide(t *testing.T) {
	names := []string{
		"කවින්ද ගොවිපල",
		"சுனில் கடை",
		"කෘෂිකර්මය",
		"சுகாதாரம்",
		"农业合作社",
		"acme",
	}
	seen := make(map[string]string)
	for _, in := range names {
		out := Name(in)
		if out == DefaultName {
			t.Errorf("Name(%q) fell back to %q", in, DefaultName)
		}
		if prev, ok := seen[out]; ok {
			t.Errorf("Name(%q) and Name(%q) both sanitize to %q", prev, in, out)
		}
		seen[out] = in
	}
}

func TestName_LengthLimit_MultiByte(t *testing.T) {
	result := Name(strings.Repeat("ගොවිපල", 20))

	if len(result) > MaxNameLength {
		t.Errorf("Name should be <= %d bytes, got %d", MaxNameLength, len(result))
	}
	if !utf8.ValidString(result) {
		t.Errorf("truncated name is not valid UTF-8: %q", result)
	}
	if Name(result) != result {
		t.Errorf("truncated name not idempotent: %q", result)
	}
}

func TestName_LengthLimit(t *testing.T) {
	longInput := strings.Repeat("a", 100)
	result := Name(longInput)

	if len(result) > MaxNameLength {
		t.Errorf("Name should be <= %d chars, got %d", MaxNameLength, len(result))
	}
	if !strings.Contains(result, "_") {
		t.Error("Truncated name should contain hash suffix")
	}
}

func TestName_LengthLimit_Uniqueness(t *testing.T) {
	result1 := Name(strings.Repeat("a", 100))
	result2 := Name(strings.Repeat("a", 99) + "b")

	if result1 == result2 {
		t.Error("Different inputs should produce different hashed outputs")
	}
}

func TestName_ExactlyMaxLength(t *testing.T) {
	input := strings.Repeat("a", MaxNameLength)
	if result := Name(input); result != input {
		t.Errorf("Input at max length should not be modified, got %q", result)
	}
}

func TestName_NeverContainsSeparator(t *testing.T) {
	for _, in := range []string{"a__b", "a _ b", "a!_!_b", "__"} {
		if strings.Contains(Name(in), Separator) {
			t.Errorf("Name(%q) = %q contains separator", in, Name(in))
		}
	}
}

func TestStoreDirName(t *testing.T) {
	dir := StoreDirName("Acme Corp", "u1")
	if dir != "acme_corp__u1" {
		t.Fatalf("StoreDirName = %q, want %q", dir, "acme_corp__u1")
	}

	org, user, ok := SplitStoreDirName(dir)
	if !ok || org != "acme_corp" || user != "u1" {
		t.Errorf("SplitStoreDirName(%q) = %q, %q, %v", dir, org, user, ok)
	}
}

func TestSplitStoreDirName_Invalid(t *testing.T) {
	for _, dir := range []string{"nounderscore", "__u1", "acme__", "acme_u1"} {
		if _, _, ok := SplitStoreDirName(dir); ok {
			t.Errorf("SplitStoreDirName(%q) should fail", dir)
		}
	}
}
