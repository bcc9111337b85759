package parsing

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeTelegraph 计数用的长文页面桩实现。
type fakeTelegraph struct {
	calls int
	url   string
	err   error

	lastTitle string
	lastHTML  string
}

func (f *fakeTelegraph) CreatePage(_ context.Context, title, html string) (string, error) {
	f.calls++
	f.lastTitle = title
	f.lastHTML = html
	return f.url, f.err
}

func newTestFormatter(html, title string, cfg FormatterConfig) *PostFormatter {
	return NewPostFormatter(
		html,
		title,
		"My Feed",
		"https://a.example/post",
		"",
		nil,
		"https://a.example/feed",
		nil,
		cfg,
	)
}

func TestGetFormattedPost_Defaults(t *testing.T) {
	p := newTestFormatter("<p>Body text</p>", "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{Tags: []string{"custom"}})
	if post == nil {
		t.Fatal("expected a post")
	}
	for _, want := range []string{"Hello", "#custom", "Body text", "via "} {
		if !strings.Contains(post.HTML, want) {
			t.Errorf("output should contain %q: got %q", want, post.HTML)
		}
	}
	if !strings.Contains(post.HTML, `<a href="https://a.example/post">My Feed</a>`) {
		t.Errorf("via should link the feed title: got %q", post.HTML)
	}
	if post.NeedMedia {
		t.Error("no media expected")
	}
	if post.NeedLinkPreview {
		t.Error("link preview should stay off for normal messages in auto mode")
	}
}

func TestGetFormattedPost_ViaCompletelyDisabled(t *testing.T) {
	p := newTestFormatter("<p>Body text</p>", "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{DisplayVia: ViaCompletelyDisable})
	if post == nil {
		t.Fatal("expected a post")
	}
	if strings.Contains(post.HTML, "via") {
		t.Errorf("attribution should be suppressed: got %q", post.HTML)
	}
}

func TestGetFormattedPost_TitleSimilarToBodySuppressed(t *testing.T) {
	p := newTestFormatter(
		"<p>Breaking news today and more details follow.</p>",
		"Breaking news today",
		FormatterConfig{},
	)
	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("expected a post")
	}
	if strings.Contains(post.HTML, "<b><u>") {
		t.Errorf("duplicated title should be hidden in auto mode: got %q", post.HTML)
	}
}

func TestGetFormattedPost_ForceDisplayTitle(t *testing.T) {
	p := newTestFormatter(
		"<p>Breaking news today and more details follow.</p>",
		"Breaking news today",
		FormatterConfig{},
	)
	post := p.GetFormattedPost(context.Background(), FormatOptions{DisplayTitle: ForceDisplay})
	if post == nil || !strings.Contains(post.HTML, "<b><u>Breaking news today</u></b>") {
		t.Fatalf("forced title should be shown: got %+v", post)
	}
}

func TestGetFormattedPost_LongBodyGoesToTelegraph(t *testing.T) {
	tg := &fakeTelegraph{url: "https://telegra.ph/test-page"}
	body := "<p>" + strings.Repeat("长文内容", 2000) + "</p>"
	p := newTestFormatter(body, "Hello", FormatterConfig{Telegraph: tg})

	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("expected a post")
	}
	if !strings.Contains(post.HTML, "https://telegra.ph/test-page") {
		t.Errorf("output should link the page: got %q", post.HTML)
	}
	if strings.Contains(post.HTML, "长文内容") {
		t.Error("body should not be inlined when sent as a page")
	}
	if !post.NeedLinkPreview {
		t.Error("page messages rely on the link preview")
	}
	if tg.calls != 1 {
		t.Errorf("CreatePage calls: got %d, want 1", tg.calls)
	}
	if tg.lastTitle != "Hello" {
		t.Errorf("page title: got %q", tg.lastTitle)
	}
}

func TestGetFormattedPost_TelegraphCreatedOnce(t *testing.T) {
	tg := &fakeTelegraph{url: "https://telegra.ph/test-page"}
	body := "<p>" + strings.Repeat("长文内容", 2000) + "</p>"
	p := newTestFormatter(body, "Hello", FormatterConfig{Telegraph: tg})

	ctx := context.Background()
	p.GetFormattedPost(ctx, FormatOptions{})
	p.GetFormattedPost(ctx, FormatOptions{DisplayAuthor: ForceDisplay})
	p.GetFormattedPost(ctx, FormatOptions{Tags: []string{"x"}})
	if tg.calls != 1 {
		t.Errorf("CreatePage calls: got %d, want 1", tg.calls)
	}
}

func TestGetFormattedPost_TelegraphFailureFallsBackToLink(t *testing.T) {
	tg := &fakeTelegraph{err: errors.New("flood wait")}
	body := "<p>" + strings.Repeat("长文内容", 2000) + "</p>"
	p := newTestFormatter(body, "Hello", FormatterConfig{Telegraph: tg})

	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("entry must not be dropped when page creation fails")
	}
	if !strings.Contains(post.HTML, "https://a.example/post") {
		t.Errorf("fallback should reference the entry link: got %q", post.HTML)
	}
	if strings.Contains(post.HTML, "长文内容") {
		t.Error("body should not be inlined in the fallback")
	}
}

func TestGetFormattedPost_NoTelegraphConfiguredFallsBack(t *testing.T) {
	body := "<p>" + strings.Repeat("长文内容", 2000) + "</p>"
	p := newTestFormatter(body, "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("expected a fallback post")
	}
	if strings.Contains(post.HTML, "长文内容") {
		t.Error("body should not be inlined in the fallback")
	}
}

func TestGetFormattedPost_EmptyEntry(t *testing.T) {
	p := NewPostFormatter("", "", "", "", "", nil, "", nil, FormatterConfig{})
	if post := p.GetFormattedPost(context.Background(), FormatOptions{}); post != nil {
		t.Errorf("empty entry should produce no post, got %+v", post)
	}
}

func TestGetFormattedPost_Memoized(t *testing.T) {
	p := newTestFormatter("<p>Body text</p>", "Hello", FormatterConfig{})
	ctx := context.Background()
	opts := FormatOptions{Tags: []string{"t"}}
	first := p.GetFormattedPost(ctx, opts)
	second := p.GetFormattedPost(ctx, opts)
	if first != second {
		t.Error("repeated calls with the same options should hit the cache")
	}
	if first.HTML != second.HTML {
		t.Errorf("outputs differ: %q vs %q", first.HTML, second.HTML)
	}
}

func TestGetFormattedPost_ForceLinkMode(t *testing.T) {
	p := newTestFormatter("<p>Body text</p>", "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{SendMode: SendModeForceLink})
	if post == nil {
		t.Fatal("expected a post")
	}
	if strings.Contains(post.HTML, "Body text") {
		t.Errorf("link messages carry no body: got %q", post.HTML)
	}
	if !post.NeedLinkPreview {
		t.Error("link messages rely on the link preview")
	}
}

func TestGetFormattedPost_ForceMessageKeepsBody(t *testing.T) {
	body := "<p>" + strings.Repeat("长文内容", 2000) + "</p>"
	p := newTestFormatter(body, "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{SendMode: SendModeForceMessage})
	if post == nil || !strings.Contains(post.HTML, "长文内容") {
		t.Fatal("forced message mode must inline the body")
	}
}

func TestGetFormattedPost_MediaFlags(t *testing.T) {
	html := `<p>pic</p><img src="https://a.example/x.jpg">`
	p := newTestFormatter(html, "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("expected a post")
	}
	if !post.NeedMedia {
		t.Error("NeedMedia should be set when the entry has media")
	}

	p2 := newTestFormatter(html, "Hello", FormatterConfig{})
	post2 := p2.GetFormattedPost(context.Background(), FormatOptions{DisplayMedia: Disable})
	if post2 == nil {
		t.Fatal("expected a post")
	}
	if post2.NeedMedia {
		t.Error("NeedMedia should be off when media display is disabled")
	}
}

func TestGetFormattedPost_MediaOnlyMode(t *testing.T) {
	html := `<p>pic</p><img src="https://a.example/x.jpg">`
	p := newTestFormatter(html, "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{DisplayMedia: MediaOnlyNoContent})
	if post == nil {
		t.Fatal("expected a post")
	}
	if !post.NeedMedia {
		t.Error("media-only mode should keep the media")
	}
	if strings.Contains(post.HTML, "pic") {
		t.Errorf("media-only mode should drop the body text: got %q", post.HTML)
	}
}

func TestGetFormattedPost_EntryTags(t *testing.T) {
	p := NewPostFormatter(
		"<p>Body text</p>", "Hello", "My Feed", "https://a.example/post", "",
		[]string{"tech news", "golang"},
		"https://a.example/feed", nil, FormatterConfig{},
	)
	post := p.GetFormattedPost(context.Background(), FormatOptions{
		Tags:             []string{"custom"},
		DisplayEntryTags: ForceDisplay,
	})
	if post == nil {
		t.Fatal("expected a post")
	}
	for _, want := range []string{"#custom", "#tech_news", "#golang"} {
		if !strings.Contains(post.HTML, want) {
			t.Errorf("missing %q in %q", want, post.HTML)
		}
	}
}

func TestGetFormattedPost_AuthorShown(t *testing.T) {
	p := NewPostFormatter(
		"<p>Body text</p>", "Hello", "My Feed", "https://a.example/post", "Jamie",
		nil, "https://a.example/feed", nil, FormatterConfig{},
	)
	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil || !strings.Contains(post.HTML, "(author: Jamie)") {
		t.Fatalf("author line missing: got %+v", post)
	}
}

func TestGetFormattedPost_FlowerssStyle(t *testing.T) {
	p := newTestFormatter("<p>Body text</p>", "Hello", FormatterConfig{})
	post := p.GetFormattedPost(context.Background(), FormatOptions{Style: StyleFlowerss})
	if post == nil {
		t.Fatal("expected a post")
	}
	if !strings.Contains(post.HTML, "<b>My Feed</b>") {
		t.Errorf("flowerss header should carry the feed title: got %q", post.HTML)
	}
	if !strings.Contains(post.HTML, `>source</a>`) {
		t.Errorf("flowerss footer should carry the source link: got %q", post.HTML)
	}
}

func TestGetFormattedPost_LengthLimitForcesTelegraph(t *testing.T) {
	tg := &fakeTelegraph{url: "https://telegra.ph/test-page"}
	p := newTestFormatter("<p>A fairly short body over the limit</p>", "Hello", FormatterConfig{Telegraph: tg})
	post := p.GetFormattedPost(context.Background(), FormatOptions{LengthLimit: 10})
	if post == nil {
		t.Fatal("expected a post")
	}
	if !strings.Contains(post.HTML, "https://telegra.ph/test-page") {
		t.Errorf("length limit should route to a page: got %q", post.HTML)
	}
}

func TestParseContent_EnclosureMerging(t *testing.T) {
	enclosures := []Enclosure{
		{URL: "https://a.example/x.jpg", Type: "image/jpeg"},
		{URL: "https://a.example/song.mp3", Type: "audio/mpeg"},
		{URL: "https://a.example/clip.webp", Type: "image/webp"},
	}
	p := NewPostFormatter(
		`<p>t</p><img src="https://a.example/x.jpg?size=small">`,
		"Hello", "My Feed", "https://a.example/post", "", nil,
		"https://a.example/feed", enclosures,
		FormatterConfig{WeservBase: "https://wsrv.nl/"},
	)
	post := p.GetFormattedPost(context.Background(), FormatOptions{})
	if post == nil {
		t.Fatal("expected a post")
	}
	items := p.Media().Items()
	if len(items) != 3 {
		t.Fatalf("media items: got %d, want 3: %+v", len(items), items)
	}
	// 宽松去重命中：附件地址更干净，应提到最前
	if items[0].ChosenURL != "https://a.example/x.jpg" {
		t.Errorf("enclosure URL should be preferred: got %q", items[0].ChosenURL)
	}
	if items[1].Type != MediumAudio {
		t.Errorf("audio enclosure: got %+v", items[1])
	}
	if !strings.Contains(items[2].ChosenURL, "wsrv.nl") || !strings.Contains(items[2].ChosenURL, "output=jpg") {
		t.Errorf("webp enclosure should go through the image proxy: got %q", items[2].ChosenURL)
	}
}
