package sanitize

import "testing"

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "Hello, World!", "Hello, World!"},
		{"keeps newline tab cr", "a\nb\tc\rd", "a\nb\tc\rd"},
		{"drops null", "a\x00b", "ab"},
		{"drops bell", "ring\x07ring", "ringring"},
		{"folds accents", "café ünïcode", "cafe unicode"},
		{"folds eszett", "straße", "strasse"},
		{"drops emoji", "hi 👋 there", "hi  there"},
		{"empty", "", ""},
		{"boundary 32 and 126", " ~", " ~"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.in); got != tt.want {
				t.Errorf("Message(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMessageIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"café ünïcode\x00\x07",
		"line1\nline2\ttabbed",
		"👋👋👋",
	}
	for _, in := range inputs {
		once := Message(in)
		if twice := Message(once); twice != once {
			t.Errorf("Message not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Alice", "Alice"},
		{"collapses whitespace", "  Alice   Smith  ", "Alice Smith"},
		{"control to space", "Ali\x00ce", "Ali ce"},
		{"accents folded", "Zoë", "Zoe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.in); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
