package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/iabetor/tgfeed/internal/logger"
	"github.com/iabetor/tgfeed/internal/parsing"
	"github.com/mmcdole/gofeed"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxFeedBytes        = 16 << 20
	userAgent           = "tgfeed/1.0 RSS Reader"
	acceptHeader        = "application/rss+xml, application/rdf+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, text/*;q=0.7, application/*;q=0.6"
)

// Fetcher 负责抓取并解析订阅源，支持 ETag/Last-Modified 条件请求。
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
}

// NewFetcher 创建抓取器，timeout 为 0 时使用默认超时。
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch 抓取订阅源。etag 和 lastModified 来自上次抓取，
// 源未变化时返回 NotModified 而不重复解析。
func (f *Fetcher) Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("抓取 %s 失败: %w", url, err)
	}
	defer resp.Body.Close()

	result := &FetchResult{
		URL:          resp.Request.URL.String(),
		Status:       resp.StatusCode,
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("抓取 %s 失败: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return result, fmt.Errorf("读取 %s 响应失败: %w", url, err)
	}
	if len(body) == 0 {
		return result, fmt.Errorf("%s 返回空内容", url)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		// 可能是普通网页，尝试从 <link rel="alternate"> 嗅探真实地址
		if sniffed := SniffFeedURL(string(body)); sniffed != "" {
			return result, &NotAFeedError{URL: url, Sniffed: sniffed}
		}
		return result, fmt.Errorf("解析 %s 失败: %w", url, err)
	}

	feed := convertFeed(parsed)
	if feed.Title == "" && len(feed.Entries) == 0 {
		return result, fmt.Errorf("%s 不是有效的订阅源", url)
	}
	result.Feed = feed
	return result, nil
}

// FetchAndValidate 订阅时的入口：抓取并验证地址，网页地址自动跟随
// 嗅探到的订阅链接重试一次。返回最终地址和源标题。
func (f *Fetcher) FetchAndValidate(ctx context.Context, url string) (string, string, error) {
	result, err := f.Fetch(ctx, url, "", "")
	if notFeed, ok := err.(*NotAFeedError); ok {
		logger.Infof("[rss] %s 是网页，改用嗅探到的 %s", url, notFeed.Sniffed)
		url = resolveSniffedURL(result.URL, notFeed.Sniffed)
		result, err = f.Fetch(ctx, url, "", "")
	}
	if err != nil {
		return "", "", fmt.Errorf("无法订阅该地址: %w", err)
	}
	title := result.Feed.Title
	if title == "" {
		title = url
	}
	return url, title, nil
}

// NotAFeedError 地址指向普通网页，但页面声明了订阅链接。
type NotAFeedError struct {
	URL     string
	Sniffed string
}

func (e *NotAFeedError) Error() string {
	return fmt.Sprintf("%s 不是订阅源，页面声明的订阅地址为 %s", e.URL, e.Sniffed)
}

var (
	alternateLinkRe = regexp.MustCompile(`(?i)<link[^>]+rel=["']alternate["'][^>]*>`)
	linkTypeRe      = regexp.MustCompile(`(?i)type=["']([^"']+)["']`)
	linkHrefRe      = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)
)

// SniffFeedURL 从 HTML 页面中嗅探 <link rel="alternate"> 声明的订阅地址。
func SniffFeedURL(html string) string {
	for _, tag := range alternateLinkRe.FindAllString(html, -1) {
		href := linkHrefRe.FindStringSubmatch(tag)
		if href == nil {
			continue
		}
		linkType := ""
		if m := linkTypeRe.FindStringSubmatch(tag); m != nil {
			linkType = strings.ToLower(m[1])
		}
		if strings.Contains(linkType, "rss") || strings.Contains(linkType, "atom") || strings.Contains(linkType, "xml") {
			return href[1]
		}
	}
	return ""
}

// resolveSniffedURL 嗅探出的地址可能是相对路径，基于页面地址解析。
func resolveSniffedURL(base, sniffed string) string {
	return parsing.ResolveRelativeLink(base, sniffed)
}
