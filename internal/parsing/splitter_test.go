package parsing

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHTMLToPlainText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"<b>bold</b> text", "bold text"},
		{"line1<br>line2<br/>line3", "line1\nline2\nline3"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"", ""},
		{`<a href="https://a.example/">link</a>`, "link"},
	}
	for _, c := range cases {
		if got := HTMLToPlainText(c.in); got != c.want {
			t.Errorf("HTMLToPlainText(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPlainTextLength(t *testing.T) {
	if got := PlainTextLength("<b>中文</b>ab"); got != 4 {
		t.Errorf("got %d, want 4", got)
	}
}

func TestSplitMessage_NoSplit(t *testing.T) {
	chunks := SplitMessage("short text", 100)
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Errorf("got %v", chunks)
	}
}

func TestSplitMessage_SplitsAtNewlines(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n" + strings.Repeat("b", 40) + "\n" + strings.Repeat("c", 40)
	chunks := SplitMessage(text, 90)
	if len(chunks) != 2 {
		t.Fatalf("chunks: got %d, want 2: %v", len(chunks), chunks)
	}
	if !strings.HasSuffix(chunks[0], strings.Repeat("b", 40)) {
		t.Errorf("first chunk should end at a line boundary: %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("c", 40) {
		t.Errorf("second chunk: %q", chunks[1])
	}
}

func TestSplitMessage_HardCutsLongLine(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks: got %d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 100 {
			t.Errorf("chunk %d too long: %d", i, utf8.RuneCountInString(chunk))
		}
	}
}

func TestSplitMessage_CountsRunes(t *testing.T) {
	text := strings.Repeat("中", 150)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks: got %d, want 2", len(chunks))
	}
	if utf8.RuneCountInString(chunks[0]) != 100 {
		t.Errorf("first chunk runes: got %d, want 100", utf8.RuneCountInString(chunks[0]))
	}
}
