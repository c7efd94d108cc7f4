package sanitizer

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestPlainTextTable(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text passes through", "Alice Johnson", "Alice Johnson"},
		{"tags stripped", "<b>Alice</b> Johnson", "Alice Johnson"},
		{"script content dropped", `<script>alert("x")</script>Alice`, "Alice"},
		{"event handlers dropped", `<img src=x onerror="steal()">Alice`, "Alice"},
		{"whitespace trimmed", "  Alice  ", "Alice"},
		{"empty input", "", ""},
		{"only markup", "<div><span></span></div>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlainTextNeverEmitsTags(t *testing.T) {
	s := New()

	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(t, "name")
		tag := rapid.SampledFrom([]string{"script", "img", "iframe", "a", "style"}).Draw(t, "tag")
		payload := rapid.StringMatching(`[a-zA-Z0-9='" ]{0,20}`).Draw(t, "payload")

		input := "<" + tag + " " + payload + ">" + name + "</" + tag + ">"
		out := s.PlainText(input)

		if strings.ContainsAny(out, "<>") {
			t.Fatalf("sanitized output still contains markup: %q -> %q", input, out)
		}
	})
}
