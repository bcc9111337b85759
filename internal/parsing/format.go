package parsing

import (
	"context"
	"fmt"
	"hash/crc32"
	"regexp"
)

// Entry 归一化后的订阅条目，由 rss 层从各种 feed 格式整理而来。
type Entry struct {
	GUID       string
	Link       string
	Title      string
	Author     string
	Summary    string
	Content    string
	Tags       []string
	Enclosures []Enclosure
}

// Formatting 合并订阅级与用户级覆盖后的最终格式化选项。
type Formatting struct {
	Notify           int
	SendMode         int
	LengthLimit      int
	LinkPreview      int
	DisplayAuthor    int
	DisplayVia       int
	DisplayTitle     int
	DisplayEntryTags int
	Style            int
	DisplayMedia     int
	Interval         int
	Tags             []string
	TitleOverride    string
}

// FormattedPost 格式化完成、可交给发送层的消息。
type FormattedPost struct {
	HTML            string
	Media           []string
	NeedMedia       bool
	NeedLinkPreview bool
	Title           string
	Link            string
}

// parsedEntry 清洗后的条目字段。
type parsedEntry struct {
	content    string
	link       string
	author     string
	title      string
	tags       []string
	enclosures []Enclosure
}

// normalizeEntry 清洗条目：正文去换行并替换非法字符，
// 链接缺失时退回 guid，作者和标题转为纯文本。
func normalizeEntry(entry *Entry) parsedEntry {
	content := entry.Content
	if content == "" {
		content = entry.Summary
	}
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	var tags []string
	for _, tag := range entry.Tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return parsedEntry{
		content:    ValidateHTML(content),
		link:       link,
		author:     EnsurePlain(entry.Author, false),
		title:      EnsurePlain(entry.Title, true),
		tags:       tags,
		enclosures: entry.Enclosures,
	}
}

// NewEntryFormatter 为单个条目创建格式化器。同一条目推送给多个
// 订阅者时复用同一实例，解析和 Telegraph 页面只做一次。
// feedTitle/feedLink 为订阅源级别的兜底信息。
func NewEntryFormatter(entry *Entry, feedTitle, feedLink string, cfg FormatterConfig) *PostFormatter {
	parsed := normalizeEntry(entry)
	link := parsed.link
	if link == "" {
		link = feedLink
	}
	return NewPostFormatter(
		parsed.content,
		parsed.title,
		feedTitle,
		link,
		parsed.author,
		parsed.tags,
		feedLink,
		parsed.enclosures,
		cfg,
	)
}

// Format 按订阅者的合并选项格式化条目。
// 返回 nil 表示这组选项下没有可发送的内容。
func (p *PostFormatter) Format(ctx context.Context, formatting Formatting) *FormattedPost {
	subTitle := formatting.TitleOverride
	if subTitle == "" {
		subTitle = p.feedTitle
	}
	result := p.GetFormattedPost(ctx, FormatOptions{
		SubTitle:         subTitle,
		Tags:             formatting.Tags,
		SendMode:         formatting.SendMode,
		LengthLimit:      formatting.LengthLimit,
		LinkPreview:      formatting.LinkPreview,
		DisplayAuthor:    formatting.DisplayAuthor,
		DisplayVia:       formatting.DisplayVia,
		DisplayTitle:     formatting.DisplayTitle,
		DisplayEntryTags: formatting.DisplayEntryTags,
		Style:            formatting.Style,
		DisplayMedia:     formatting.DisplayMedia,
	})
	if result == nil {
		return nil
	}

	var media []string
	if m := p.Media(); m != nil {
		media = m.ListURLs()
	}
	return &FormattedPost{
		HTML:            result.HTML,
		Media:           media,
		NeedMedia:       result.NeedMedia,
		NeedLinkPreview: result.NeedLinkPreview,
		Title:           p.title,
		Link:            p.link,
	}
}

// FormatPost 一次性格式化单个条目，是发送层消费的入口。
func FormatPost(ctx context.Context, entry *Entry, feedTitle, feedLink string, formatting Formatting, cfg FormatterConfig) *FormattedPost {
	return NewEntryFormatter(entry, feedTitle, feedLink, cfg).Format(ctx, formatting)
}

// GenerateEntryHash 计算条目去重指纹：取 guid、link、title、summary、
// content 中首个非空值做 CRC32。
func GenerateEntryHash(entry *Entry) string {
	guid := entry.GUID
	for _, candidate := range []string{entry.Link, entry.Title, entry.Summary, entry.Content} {
		if guid != "" {
			break
		}
		guid = candidate
	}
	return fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte(guid)))
}

var tagSplitRe = regexp.MustCompile(`[\s#\x{ff0c},;\x{ff1b}]+`)

// ParseTagList 解析用户输入的标签串，支持空白、# 和中英文逗号分号分隔。
func ParseTagList(value string) []string {
	if value == "" {
		return nil
	}
	var tags []string
	for _, tag := range tagSplitRe.Split(value, -1) {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
