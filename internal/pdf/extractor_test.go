package pdfutil

import "testing"

func TestExcerpt(t *testing.T) {
	if got := Excerpt("  short text  ", 100); got != "short text" {
		t.Fatalf("expected trimmed passthrough, got %q", got)
	}
	if got := Excerpt("abcdef", 3); got != "abc" {
		t.Fatalf("expected bounded excerpt, got %q", got)
	}
	// Cutting must respect rune boundaries.
	if got := Excerpt("ößä", 2); got != "öß" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := Excerpt("", 10); got != "" {
		t.Fatalf("expected empty excerpt, got %q", got)
	}
}
