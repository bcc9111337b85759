// Package telegram 封装 Bot API 调用与消息发送。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/tgfeed/internal/logger"
	"golang.org/x/net/proxy"
)

const (
	defaultAPIBase    = "https://api.telegram.org"
	defaultTimeout    = 60 * time.Second
	maxRetries        = 2
	maxBackoff        = 4 * time.Second
	captionLengthCap  = 1024
	messageLengthCap  = 4096
	mediaGroupSizeCap = 10
)

// Client Bot API 客户端。429 和 5xx 自动指数退避重试。
type Client struct {
	token   string
	apiBase string
	http    *http.Client
}

// NewClient 创建客户端。proxyAddr 非空时走 SOCKS5 代理。
func NewClient(token, apiBase, proxyAddr string) (*Client, error) {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	httpClient := &http.Client{Timeout: defaultTimeout}
	if proxyAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("创建 SOCKS5 代理失败: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 代理不支持 context 拨号")
		}
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return contextDialer.DialContext(ctx, network, addr)
			},
		}
		logger.Infof("[telegram] 使用 SOCKS5 代理 %s", proxyAddr)
	}
	return &Client{
		token:   token,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		http:    httpClient,
	}, nil
}

// apiResponse Bot API 统一响应包裹。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError Bot API 返回的业务错误。
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
}

// call 调用 Bot API 方法。429/5xx 时最多重试 maxRetries 次。
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 %s 请求失败: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			if delay > maxBackoff {
				delay = maxBackoff
			}
			logger.Warnf("[telegram] %s 第 %d 次重试，等待 %v: %v", method, attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("构造 %s 请求失败: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("调用 %s 失败: %w", method, err)
			continue
		}

		var decoded apiResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("调用 %s 失败: HTTP %d", method, resp.StatusCode)
			continue
		}
		if decodeErr != nil {
			return fmt.Errorf("解析 %s 响应失败: %w", method, decodeErr)
		}
		if !decoded.OK {
			return &APIError{Method: method, Description: decoded.Description}
		}
		if result != nil && len(decoded.Result) > 0 {
			if err := json.Unmarshal(decoded.Result, result); err != nil {
				return fmt.Errorf("解析 %s 结果失败: %w", method, err)
			}
		}
		return nil
	}
	return lastErr
}

// Message Bot API 消息对象（只保留用到的字段）。
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"chat_id"`
	} `json:"chat"`
}

// MessageOptions 文本消息可选项。
type MessageOptions struct {
	DisablePreview      bool
	DisableNotification bool
}

// GetMe 验证令牌并返回 bot 用户名。
func (c *Client) GetMe(ctx context.Context) (string, error) {
	var result struct {
		Username string `json:"username"`
	}
	if err := c.call(ctx, "getMe", map[string]any{}, &result); err != nil {
		return "", err
	}
	return result.Username, nil
}

// SendMessage 发送 HTML 格式的文本消息。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": opts.DisablePreview,
		"disable_notification":     opts.DisableNotification,
	}, nil)
}

func (c *Client) sendSingleMedia(ctx context.Context, method, field string, chatID int64, url, caption string, silent bool) error {
	payload := map[string]any{
		"chat_id":              chatID,
		field:                  url,
		"disable_notification": silent,
	}
	if caption != "" {
		payload["caption"] = caption
		payload["parse_mode"] = "HTML"
	}
	return c.call(ctx, method, payload, nil)
}

// SendPhoto 发送图片。
func (c *Client) SendPhoto(ctx context.Context, chatID int64, url, caption string, silent bool) error {
	return c.sendSingleMedia(ctx, "sendPhoto", "photo", chatID, url, caption, silent)
}

// SendVideo 发送视频。
func (c *Client) SendVideo(ctx context.Context, chatID int64, url, caption string, silent bool) error {
	return c.sendSingleMedia(ctx, "sendVideo", "video", chatID, url, caption, silent)
}

// SendAudio 发送音频。
func (c *Client) SendAudio(ctx context.Context, chatID int64, url, caption string, silent bool) error {
	return c.sendSingleMedia(ctx, "sendAudio", "audio", chatID, url, caption, silent)
}

// SendDocument 发送文件。
func (c *Client) SendDocument(ctx context.Context, chatID int64, url, caption string, silent bool) error {
	return c.sendSingleMedia(ctx, "sendDocument", "document", chatID, url, caption, silent)
}

// InputMedia 媒体组成员。
type InputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMediaGroup 发送媒体组（2-10 个图片/视频）。
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, media []InputMedia, silent bool) error {
	return c.call(ctx, "sendMediaGroup", map[string]any{
		"chat_id":              chatID,
		"media":                media,
		"disable_notification": silent,
	}, nil)
}
