package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/iabetor/tgfeed/internal/parsing"
)

func TestGuessMediaType(t *testing.T) {
	cases := []struct{ url, want string }{
		{"https://a.example/x.jpg", "photo"},
		{"https://a.example/x.png?w=600", "photo"},
		{"https://a.example/x.mp4", "video"},
		{"https://a.example/x.WEBM?q=1", "video"},
		{"https://a.example/x.mp3", "audio"},
		{"https://a.example/x.pdf", "document"},
		{"https://a.example/x", "photo"},
	}
	for _, c := range cases {
		if got := guessMediaType(c.url); got != c.want {
			t.Errorf("guessMediaType(%q): got %q, want %q", c.url, got, c.want)
		}
	}
}

func TestBuildMediaGroup(t *testing.T) {
	group := buildMediaGroup([]string{
		"https://a.example/1.jpg",
		"https://a.example/2.mp4",
	}, "caption")
	if len(group) != 2 {
		t.Fatalf("group: got %+v", group)
	}
	if group[0].Type != "photo" || group[1].Type != "video" {
		t.Errorf("types: got %+v", group)
	}
	if group[0].Caption != "caption" || group[0].ParseMode != "HTML" {
		t.Errorf("caption should sit on the first item: got %+v", group[0])
	}
	if group[1].Caption != "" {
		t.Errorf("only the first item carries the caption: got %+v", group[1])
	}
}

func TestBuildMediaGroup_MixedTypesRejected(t *testing.T) {
	if group := buildMediaGroup([]string{"https://a.example/1.jpg", "https://a.example/2.mp3"}, ""); group != nil {
		t.Errorf("audio cannot join a media group: got %+v", group)
	}
	if group := buildMediaGroup(nil, ""); group != nil {
		t.Errorf("empty input: got %+v", group)
	}
}

// recordedCall 测试服务器收到的一次 Bot API 调用。
type recordedCall struct {
	method  string
	payload map[string]any
}

func newTestSender(t *testing.T) (*Sender, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		calls = append(calls, recordedCall{method: parts[len(parts)-1], payload: payload})
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})
	return NewSender(client), &calls
}

func TestSendPost_TextOnly(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{HTML: "<b>hello</b>"}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 1 || got[0].method != "sendMessage" {
		t.Fatalf("calls: got %+v", got)
	}
	if got[0].payload["disable_web_page_preview"] != true {
		t.Error("preview should be disabled when the post does not need it")
	}
	if got[0].payload["disable_notification"] != false {
		t.Error("notify=true should not silence the message")
	}
}

func TestSendPost_SilentWhenMuted(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{HTML: "x"}
	if err := sender.SendPost(context.Background(), 42, post, false); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	if (*calls)[0].payload["disable_notification"] != true {
		t.Error("notify=false should silence the message")
	}
}

func TestSendPost_MediaGroupWithCaption(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{
		HTML:      "short caption",
		Media:     []string{"https://a.example/1.jpg", "https://a.example/2.jpg"},
		NeedMedia: true,
	}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 1 || got[0].method != "sendMediaGroup" {
		t.Fatalf("calls: got %+v", got)
	}
	media := got[0].payload["media"].([]any)
	if len(media) != 2 {
		t.Fatalf("media: got %v", media)
	}
	first := media[0].(map[string]any)
	if first["caption"] != "short caption" {
		t.Errorf("caption: got %v", first)
	}
}

func TestSendPost_LongTextBesideMedia(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{
		HTML:      strings.Repeat("长", 2000),
		Media:     []string{"https://a.example/1.jpg"},
		NeedMedia: true,
	}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 2 {
		t.Fatalf("calls: got %+v", got)
	}
	// 正文超过说明文字上限，媒体与文本分开发送
	if got[0].method != "sendMediaGroup" || got[1].method != "sendMessage" {
		t.Errorf("methods: got %s, %s", got[0].method, got[1].method)
	}
	first := got[0].payload["media"].([]any)[0].(map[string]any)
	if _, hasCaption := first["caption"]; hasCaption {
		t.Errorf("caption should be empty: got %v", first)
	}
}

func TestSendPost_SingleAudioFallsBackToSendAudio(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{
		HTML:      "episode",
		Media:     []string{"https://a.example/podcast.mp3"},
		NeedMedia: true,
	}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 1 || got[0].method != "sendAudio" {
		t.Fatalf("calls: got %+v", got)
	}
	if got[0].payload["caption"] != "episode" {
		t.Errorf("caption: got %v", got[0].payload)
	}
}

func TestSendPost_MediaIgnoredWhenNotNeeded(t *testing.T) {
	sender, calls := newTestSender(t)
	post := &parsing.FormattedPost{
		HTML:  "text",
		Media: []string{"https://a.example/1.jpg"},
	}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 1 || got[0].method != "sendMessage" {
		t.Fatalf("NeedMedia=false should send plain text: got %+v", got)
	}
}

func TestSendPost_NilPost(t *testing.T) {
	sender, calls := newTestSender(t)
	if err := sender.SendPost(context.Background(), 42, nil, true); err != nil {
		t.Fatalf("nil post should be a no-op: %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("calls: got %+v", *calls)
	}
}

func TestSendPost_MediaGroupCapped(t *testing.T) {
	sender, calls := newTestSender(t)
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = "https://a.example/pic.jpg"
	}
	post := &parsing.FormattedPost{HTML: "c", Media: urls, NeedMedia: true}
	if err := sender.SendPost(context.Background(), 42, post, true); err != nil {
		t.Fatalf("SendPost failed: %v", err)
	}
	got := *calls
	if len(got) != 1 {
		t.Fatalf("calls: got %+v", got)
	}
	media := got[0].payload["media"].([]any)
	if len(media) != 10 {
		t.Errorf("media group should be capped at 10: got %d", len(media))
	}
}
