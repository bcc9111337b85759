package telegram

import (
	"context"
	"fmt"
	"regexp"

	"github.com/iabetor/tgfeed/internal/parsing"
)

var (
	videoExtRe    = regexp.MustCompile(`(?i)\.(mp4|webm|mov)(\?|$)`)
	audioExtRe    = regexp.MustCompile(`(?i)\.(mp3|m4a|ogg|aac)(\?|$)`)
	documentExtRe = regexp.MustCompile(`(?i)\.(pdf|zip|rar|7z)(\?|$)`)
)

// Sender 把格式化完成的消息发给目标会话：正文分片、媒体成组、
// 首个分片不超过说明文字上限时作为媒体组说明。
type Sender struct {
	client *Client
}

// NewSender 创建发送器。
func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

// SendPost 发送单条格式化消息。notify 为假时静默推送。
func (s *Sender) SendPost(ctx context.Context, chatID int64, post *parsing.FormattedPost, notify bool) error {
	if post == nil {
		return nil
	}
	silent := !notify
	opts := MessageOptions{
		DisablePreview:      !post.NeedLinkPreview,
		DisableNotification: silent,
	}

	var chunks []string
	if post.HTML != "" {
		chunks = parsing.SplitMessage(post.HTML, messageLengthCap)
	}

	media := post.Media
	if !post.NeedMedia {
		media = nil
	}
	if len(media) > mediaGroupSizeCap {
		media = media[:mediaGroupSizeCap]
	}

	if len(media) == 0 {
		for _, chunk := range chunks {
			if err := s.client.SendMessage(ctx, chatID, chunk, opts); err != nil {
				return fmt.Errorf("发送消息失败: %w", err)
			}
		}
		return nil
	}

	// 首个分片足够短时作为媒体说明，避免额外的一条消息
	caption := ""
	rest := chunks
	if len(chunks) > 0 && parsing.PlainTextLength(chunks[0]) <= captionLengthCap {
		caption = chunks[0]
		rest = chunks[1:]
	}

	if group := buildMediaGroup(media, caption); group != nil {
		if err := s.client.SendMediaGroup(ctx, chatID, group, silent); err != nil {
			return fmt.Errorf("发送媒体组失败: %w", err)
		}
	} else if err := s.sendSingle(ctx, chatID, media[0], caption, silent); err != nil {
		return fmt.Errorf("发送媒体失败: %w", err)
	}

	for _, chunk := range rest {
		if err := s.client.SendMessage(ctx, chatID, chunk, opts); err != nil {
			return fmt.Errorf("发送消息失败: %w", err)
		}
	}
	return nil
}

// buildMediaGroup 所有媒体都是图片或视频时组成媒体组，否则返回 nil。
func buildMediaGroup(media []string, caption string) []InputMedia {
	group := make([]InputMedia, 0, len(media))
	for _, url := range media {
		mediaType := guessMediaType(url)
		if mediaType != "photo" && mediaType != "video" {
			return nil
		}
		group = append(group, InputMedia{Type: mediaType, Media: url})
	}
	if len(group) == 0 {
		return nil
	}
	if caption != "" {
		group[0].Caption = caption
		group[0].ParseMode = "HTML"
	}
	return group
}

func (s *Sender) sendSingle(ctx context.Context, chatID int64, url, caption string, silent bool) error {
	switch guessMediaType(url) {
	case "video":
		return s.client.SendVideo(ctx, chatID, url, caption, silent)
	case "audio":
		return s.client.SendAudio(ctx, chatID, url, caption, silent)
	case "document":
		return s.client.SendDocument(ctx, chatID, url, caption, silent)
	default:
		return s.client.SendPhoto(ctx, chatID, url, caption, silent)
	}
}

// guessMediaType 按扩展名推断媒体类型，拿不准时按图片发。
func guessMediaType(url string) string {
	switch {
	case videoExtRe.MatchString(url):
		return "video"
	case audioExtRe.MatchString(url):
		return "audio"
	case documentExtRe.MatchString(url):
		return "document"
	default:
		return "photo"
	}
}
