package parsing

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateEntryHash_FirstNonEmptyWins(t *testing.T) {
	base := GenerateEntryHash(&Entry{GUID: "g"})
	if got := GenerateEntryHash(&Entry{GUID: "g", Link: "other", Title: "other"}); got != base {
		t.Error("guid should dominate the fingerprint")
	}
	if got := GenerateEntryHash(&Entry{Link: "g"}); got != base {
		t.Error("fingerprint should only depend on the chosen field value")
	}
	if got := GenerateEntryHash(&Entry{GUID: "other"}); got == base {
		t.Error("different values should produce different fingerprints")
	}
}

func TestGenerateEntryHash_FallbackChain(t *testing.T) {
	cases := []struct {
		name  string
		entry *Entry
		value string
	}{
		{"link", &Entry{Link: "l", Title: "t"}, "l"},
		{"title", &Entry{Title: "t", Summary: "s"}, "t"},
		{"summary", &Entry{Summary: "s", Content: "c"}, "s"},
		{"content", &Entry{Content: "c"}, "c"},
	}
	for _, c := range cases {
		want := GenerateEntryHash(&Entry{GUID: c.value})
		if got := GenerateEntryHash(c.entry); got != want {
			t.Errorf("%s: got %q, want %q", c.name, got, want)
		}
	}
}

func TestGenerateEntryHash_Stable(t *testing.T) {
	entry := &Entry{GUID: "https://a.example/post/1"}
	if GenerateEntryHash(entry) != GenerateEntryHash(entry) {
		t.Error("fingerprint should be deterministic")
	}
	if len(GenerateEntryHash(entry)) > 8 {
		t.Error("fingerprint should be a compact hex value")
	}
}

func TestParseTagList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a b", []string{"a", "b"}},
		{"#tag1 #tag2", []string{"tag1", "tag2"}},
		{"a,b;c", []string{"a", "b", "c"}},
		{"甲，乙；丙", []string{"甲", "乙", "丙"}},
		{"  spaced  out  ", []string{"spaced", "out"}},
		{"", nil},
		{"###", nil},
	}
	for _, c := range cases {
		got := ParseTagList(c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("ParseTagList(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestNormalizeEntry(t *testing.T) {
	entry := &Entry{
		GUID:    "https://a.example/guid",
		Title:   "<b>Title</b> [哈哈]",
		Author:  " Jamie \n Doe ",
		Summary: "<p>summary</p>",
		Tags:    []string{"a", "", "b"},
	}
	parsed := normalizeEntry(entry)
	if parsed.content != "<p>summary</p>" {
		t.Errorf("summary should back the content: got %q", parsed.content)
	}
	if parsed.link != "https://a.example/guid" {
		t.Errorf("guid should back the link: got %q", parsed.link)
	}
	if parsed.title != "Title 😄" {
		t.Errorf("title should be plain and emojified: got %q", parsed.title)
	}
	if parsed.author != "Jamie Doe" {
		t.Errorf("author should be plain: got %q", parsed.author)
	}
	if !reflect.DeepEqual(parsed.tags, []string{"a", "b"}) {
		t.Errorf("tags: got %v", parsed.tags)
	}
}

func TestFormatPost_EndToEnd(t *testing.T) {
	entry := &Entry{
		GUID:    "https://a.example/post/1",
		Link:    "https://a.example/post/1",
		Title:   "Post title",
		Content: "<p>Post body with enough words to stand on its own.</p>",
	}
	post := FormatPost(context.Background(), entry, "My Feed", "https://a.example/feed", Formatting{}, FormatterConfig{})
	if post == nil {
		t.Fatal("expected a post")
	}
	if post.Title != "Post title" || post.Link != "https://a.example/post/1" {
		t.Errorf("metadata: got %+v", post)
	}
	if !strings.Contains(post.HTML, "Post body") {
		t.Errorf("body missing: got %q", post.HTML)
	}
}

func TestFormatPost_EmptyEntry(t *testing.T) {
	post := FormatPost(context.Background(), &Entry{}, "", "", Formatting{}, FormatterConfig{})
	if post != nil {
		t.Errorf("empty entry should produce nil, got %+v", post)
	}
}

func TestEntryFormatter_SharedAcrossSubscribers(t *testing.T) {
	entry := &Entry{
		Link:    "https://a.example/post/1",
		Title:   "Post title",
		Content: `<p>Body</p><img src="https://a.example/x.jpg">`,
	}
	formatter := NewEntryFormatter(entry, "My Feed", "https://a.example/feed", FormatterConfig{})
	ctx := context.Background()

	first := formatter.Format(ctx, Formatting{})
	if first == nil || !first.NeedMedia || len(first.Media) != 1 {
		t.Fatalf("first subscriber: got %+v", first)
	}
	// 选项不同但决策一致，命中同一缓存桶，渲染逐字节一致
	second := formatter.Format(ctx, Formatting{DisplayMedia: Disable})
	if second == nil || second.HTML != first.HTML {
		t.Fatalf("second subscriber should reuse the rendering: %+v", second)
	}
	// 决策不同则渲染不同
	third := formatter.Format(ctx, Formatting{DisplayVia: ViaCompletelyDisable})
	if third == nil || third.HTML == first.HTML {
		t.Fatalf("different decisions should render differently: %+v", third)
	}
}

func TestNewEntryFormatter_LinkFallsBackToFeedLink(t *testing.T) {
	entry := &Entry{Title: "t", Content: "<p>body</p>"}
	formatter := NewEntryFormatter(entry, "My Feed", "https://a.example/feed", FormatterConfig{})
	post := formatter.Format(context.Background(), Formatting{})
	if post == nil || post.Link != "https://a.example/feed" {
		t.Fatalf("got %+v", post)
	}
}
