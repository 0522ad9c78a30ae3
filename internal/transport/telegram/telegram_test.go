package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected chunks: %#v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("aaaa aaaa\n", 30)
	chunks := splitText(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		if strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d keeps trailing newline", i)
		}
	}
}

func TestSplitTextNoNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 250)
	chunks := splitText(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != text {
		t.Fatalf("hard split lost content: %d vs %d bytes", len(joined), len(text))
	}
}
