package planner

import "testing"

func TestNormalizeTypographicPunctuation(t *testing.T) {
	input := "It’s a “great” day — truly… don’t you think?"
	got := Normalize(input)
	want := "It's a \"great\" day -- truly... don't you think?"
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := Normalize("Hello    world.\n\nSecond   line.")
	want := "Hello world. Second line."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	input := "It’s a “great” day — truly…"
	once := Normalize(input)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize is not idempotent: once=%q twice=%q", once, twice)
	}
}
