package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const telegraphAPI = "https://api.telegra.ph/createPage"

// Telegraph 长文页面服务。实现 parsing.TelegraphCreator。
type Telegraph struct {
	token      string
	authorName string
	authorURL  string
	http       *http.Client
}

// NewTelegraph 创建 Telegraph 客户端，token 为空时返回 nil（禁用长文页面）。
func NewTelegraph(token, authorName, authorURL string) *Telegraph {
	if token == "" {
		return nil
	}
	return &Telegraph{
		token:      token,
		authorName: authorName,
		authorURL:  authorURL,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// telegraphNode Telegraph 的内容节点，children 里是字符串或嵌套节点。
type telegraphNode struct {
	Tag      string `json:"tag"`
	Children []any  `json:"children,omitempty"`
}

// CreatePage 创建页面并返回地址。
func (t *Telegraph) CreatePage(ctx context.Context, title, html string) (string, error) {
	payload := map[string]any{
		"access_token":   t.token,
		"title":          title,
		"content":        []telegraphNode{{Tag: "p", Children: []any{html}}},
		"return_content": false,
	}
	if t.authorName != "" {
		payload["author_name"] = t.authorName
	}
	if t.authorURL != "" {
		payload["author_url"] = t.authorURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化 Telegraph 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, telegraphAPI, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("构造 Telegraph 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Telegraph 失败: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		OK     bool `json:"ok"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 Telegraph 响应失败: %w", err)
	}
	if !decoded.OK || decoded.Result.URL == "" {
		return "", fmt.Errorf("创建 Telegraph 页面失败: %s", decoded.Error)
	}
	return decoded.Result.URL, nil
}
