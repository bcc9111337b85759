package parsing

import (
	"fmt"
	"strings"
)

// MediumType 媒体类型。
type MediumType string

const (
	MediumImage     MediumType = "image"
	MediumAnimation MediumType = "animation"
	MediumVideo     MediumType = "video"
	MediumAudio     MediumType = "audio"
	MediumFile      MediumType = "file"
)

// Medium 一项待发送的媒体。URLs 按优先级排列，首个为当前选中地址；
// OriginalURLs 保留注册时的原始地址，作为去重依据。
type Medium struct {
	Type         MediumType
	URLs         []string
	OriginalURLs []string
	ChosenURL    string
	Poster       string
	DropSilently bool
}

func newMedium(typ MediumType, urls []string) *Medium {
	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			filtered = append(filtered, u)
		}
	}
	m := &Medium{Type: typ, URLs: filtered}
	m.OriginalURLs = append([]string(nil), filtered...)
	if len(filtered) > 0 {
		m.ChosenURL = filtered[0]
	}
	return m
}

// NewImage 构造图片媒体。
func NewImage(urls ...string) *Medium { return newMedium(MediumImage, urls) }

// NewAnimation 构造动图媒体。
func NewAnimation(urls ...string) *Medium { return newMedium(MediumAnimation, urls) }

// NewVideo 构造视频媒体，poster 为可选封面。
func NewVideo(poster string, urls ...string) *Medium {
	m := newMedium(MediumVideo, urls)
	m.Poster = poster
	return m
}

// NewAudio 构造音频媒体。
func NewAudio(urls ...string) *Medium { return newMedium(MediumAudio, urls) }

// NewFile 构造普通文件媒体。
func NewFile(urls ...string) *Medium { return newMedium(MediumFile, urls) }

// Prepend 把新地址插到最前并选中，用于附件元数据补充的更优地址。
func (m *Medium) Prepend(url string) {
	m.URLs = append([]string{url}, m.URLs...)
	m.OriginalURLs = append([]string{url}, m.OriginalURLs...)
	m.ChosenURL = url
}

// HasOriginalURL 原始地址中是否包含 url。
func (m *Medium) HasOriginalURL(url string) bool {
	for _, u := range m.OriginalURLs {
		if u == url {
			return true
		}
	}
	return false
}

// MultimediaHTML 渲染为 Telegraph 页面用的媒体标签。
func (m *Medium) MultimediaHTML() string {
	if m.ChosenURL == "" {
		return ""
	}
	switch m.Type {
	case MediumImage, MediumAnimation:
		return fmt.Sprintf(`<img src="%s">`, m.ChosenURL)
	case MediumVideo:
		return fmt.Sprintf(`<video src="%s"></video>`, m.ChosenURL)
	case MediumAudio:
		return fmt.Sprintf(`<audio src="%s"></audio>`, m.ChosenURL)
	default:
		return fmt.Sprintf(`<a href="%s">%s</a>`, m.ChosenURL, m.ChosenURL)
	}
}

// Media 单个条目处理期间收集到的媒体集合。
type Media struct {
	items []*Medium
}

// Add 登记一项媒体。
func (m *Media) Add(medium *Medium) {
	if medium == nil {
		return
	}
	m.items = append(m.items, medium)
}

// URLExists 按地址查找已登记的媒体。loose 为真时忽略 query string。
func (m *Media) URLExists(url string, loose bool) *Medium {
	normalized := url
	if loose {
		normalized = stripQuery(url)
	}
	for _, medium := range m.items {
		for _, candidate := range medium.OriginalURLs {
			target := candidate
			if loose {
				target = stripQuery(candidate)
			}
			if target == normalized {
				return medium
			}
		}
	}
	return nil
}

// EstimateMessageCounts 估算媒体需要占用的消息条数。
// 图片和视频可以成组，每 10 个一条；动图、音频和文件各占一条。
func (m *Media) EstimateMessageCounts() int {
	groupable := 0
	single := 0
	for _, medium := range m.items {
		if medium.DropSilently {
			continue
		}
		switch medium.Type {
		case MediumImage, MediumVideo:
			groupable++
		default:
			single++
		}
	}
	count := single
	if groupable > 0 {
		count += (groupable + 9) / 10
	}
	return count
}

// ListURLs 按登记顺序返回选中的媒体地址。
func (m *Media) ListURLs() []string {
	var urls []string
	for _, medium := range m.items {
		if medium.DropSilently || medium.ChosenURL == "" {
			continue
		}
		urls = append(urls, medium.ChosenURL)
	}
	return urls
}

// Len 有效媒体数量（不含静默丢弃项）。
func (m *Media) Len() int {
	count := 0
	for _, medium := range m.items {
		if !medium.DropSilently {
			count++
		}
	}
	return count
}

// HasMedia 是否存在有效媒体。
func (m *Media) HasMedia() bool { return m.Len() > 0 }

// Items 返回全部媒体项。
func (m *Media) Items() []*Medium { return m.items }

func stripQuery(url string) string {
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		return url[:idx]
	}
	return url
}

// WeservParamEncode 编码 weserv 参数值，截掉 fragment。
func WeservParamEncode(param string) string {
	if idx := strings.IndexByte(param, '#'); idx >= 0 {
		param = param[:idx]
	}
	return strings.ReplaceAll(strings.ReplaceAll(param, "%", "%25"), "&", "%26")
}

// WeservOptions weserv 图片代理参数。
type WeservOptions struct {
	Width              int
	Height             int
	Fit                string
	Output             string
	Quality            int
	WithoutEnlargement bool
	DefaultImage       string
}

// ConstructWeservURL 构造 weserv 图片代理地址。
func ConstructWeservURL(base, url string, opts *WeservOptions) string {
	params := []string{"url=" + WeservParamEncode(url)}
	if opts != nil {
		if opts.Width > 0 {
			params = append(params, fmt.Sprintf("w=%d", opts.Width))
		}
		if opts.Height > 0 {
			params = append(params, fmt.Sprintf("h=%d", opts.Height))
		}
		if opts.Fit != "" {
			params = append(params, "fit="+opts.Fit)
		}
		if opts.Output != "" {
			params = append(params, "output="+opts.Output)
		}
		if opts.Quality > 0 {
			params = append(params, fmt.Sprintf("q=%d", opts.Quality))
		}
		if opts.WithoutEnlargement {
			params = append(params, "we=1")
		}
		if opts.DefaultImage != "" {
			params = append(params, "default="+WeservParamEncode(opts.DefaultImage))
		}
	}
	return base + "?" + strings.Join(params, "&")
}

// ConstructWeservURLConvertTo2560 构造限制在 2560px 内并转为 JPEG 的代理地址，
// 用于平台不支持的 webp/svg 图片。
func ConstructWeservURLConvertTo2560(base, url string) string {
	return ConstructWeservURL(base, url, &WeservOptions{
		Width:              2560,
		Height:             2560,
		Output:             "jpg",
		Quality:            89,
		WithoutEnlargement: true,
	})
}
