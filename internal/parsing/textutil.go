package parsing

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// 各类特殊空白，首个为普通空格。
const specialSpaces = "\u0020\u00a0\u2002\u2003\u2004\u2005\u2006\u2007" +
	"\u2008\u2009\u200a\u200b\u202f\u205f\u3000"

// 平台不接受的控制字符（保留 \n 和 \r）。
const invalidCharacters = "\u0000\u0001\u0002\u0003\u0004\u0005\u0006\u0007\u0008\u0009" +
	"\u000b\u000c\u000e\u000f\u0010\u0011\u0012\u0013\u0014\u0015\u0016\u0017" +
	"\u0018\u0019\u001a\u001b\u001c\u001d\u001e\u001f\u2028\u2029"

var (
	stripBrRe       = regexp.MustCompile(`(?i)\s*<br\s*/?\s*>\s*`)
	stripLineEndRe  = regexp.MustCompile(`[` + specialSpaces + `]+\n`)
	stripNewlineRe  = regexp.MustCompile(`\n{3,}`)
	stripAnySpaceRe = regexp.MustCompile(`[\s` + specialSpaces[1:] + `]+`)
	stripTagRe      = regexp.MustCompile(`<[^>]+>`)
	absHTTPRe       = regexp.MustCompile(`(?i)^https?://`)
	smallIconRe     = regexp.MustCompile(`(?i)(width|height): ?(([012]?\d|30)(\.\d)?px|([01](\.\d)?|2)r?em)`)
	trailingDotsRe  = regexp.MustCompile(`[.…]+$`)
)

// hashtag 中不允许的字符：空白、控制字符和除 @ 以外的 ASCII 标点，外加 "・"。
func isInvalidHashtagRune(r rune) bool {
	if r == '@' {
		return false
	}
	if strings.ContainsRune(specialSpaces, r) || strings.ContainsRune(invalidCharacters, r) {
		return true
	}
	if strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r) {
		return true
	}
	if strings.ContainsRune(" \t\r\n\v\f", r) {
		return true
	}
	return r == '・'
}

// StripBr 把各种写法的 <br> 连同周围空白归一为 <br>。
func StripBr(s string) string { return stripBrRe.ReplaceAllString(s, "<br>") }

// StripLineEnd 去掉行尾空白。
func StripLineEnd(s string) string { return stripLineEndRe.ReplaceAllString(s, "\n") }

// StripNewline 把连续三个以上的换行压缩为两个。
func StripNewline(s string) string { return stripNewlineRe.ReplaceAllString(s, "\n\n") }

// StripAnySpace 把任意连续空白压缩为单个空格。
func StripAnySpace(s string) string { return stripAnySpaceRe.ReplaceAllString(s, " ") }

// ReplaceInvalidCharacter 把控制字符替换为空格。
func ReplaceInvalidCharacter(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidCharacters, r) {
			return ' '
		}
		return r
	}, s)
}

// ReplaceSpecialSpace 把特殊空白替换为普通空格。
func ReplaceSpecialSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if r != ' ' && strings.ContainsRune(specialSpaces, r) {
			return ' '
		}
		return r
	}, s)
}

// EscapeHashtag 把 hashtag 中的非法字符连续段替换为下划线并去掉首尾下划线。
func EscapeHashtag(tag string) string {
	var b strings.Builder
	lastInvalid := false
	for _, r := range tag {
		if isInvalidHashtagRune(r) {
			if !lastInvalid {
				b.WriteByte('_')
			}
			lastInvalid = true
			continue
		}
		lastInvalid = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

// EscapeHashtags 批量转义 hashtag，丢弃转义后为空的项。
func EscapeHashtags(tags []string) []string {
	var result []string
	for _, tag := range tags {
		if escaped := EscapeHashtag(tag); escaped != "" {
			result = append(result, escaped)
		}
	}
	return result
}

// MergeTags 合并多个标签列表，按首次出现顺序去重。
func MergeTags(tagLists ...[]string) []string {
	var merged []string
	seen := map[string]bool{}
	for _, list := range tagLists {
		for _, tag := range list {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	return merged
}

// IsAbsoluteHTTPLink 是否为绝对 http/https 链接。
func IsAbsoluteHTTPLink(s string) bool {
	return s != "" && absHTTPRe.MatchString(s)
}

// ResolveRelativeLink 把相对链接解析到 base 上。
// base 或链接本身不满足条件时原样返回。
func ResolveRelativeLink(base, ref string) string {
	if base == "" || ref == "" || IsAbsoluteHTTPLink(ref) || !IsAbsoluteHTTPLink(base) {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// urlPath 提取 URL 路径部分，解析失败时返回原串。
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		return raw
	}
	return u.Path
}

// urlHostname 提取 URL 主机名，解析失败时返回原串。
func urlHostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// IsEmoticon 判断 img 是否实际是表情图标：尺寸 ≤30px、小图标样式、
// emoji/emoticon class、冒号包围的 alt 或 data URI。
func IsEmoticon(n *RawNode) bool {
	if n == nil || n.Tag != "img" {
		return false
	}
	width := parseDimension(n.Attr("width"))
	height := parseDimension(n.Attr("height"))
	cls := n.Attr("class")
	alt := n.Attr("alt")
	return width <= 30 || height <= 30 ||
		smallIconRe.MatchString(n.Attr("style")) ||
		strings.Contains(cls, "emoji") || strings.Contains(cls, "emoticon") ||
		(strings.HasPrefix(alt, ":") && strings.HasSuffix(alt, ":")) ||
		strings.HasPrefix(n.Attr("src"), "data:")
}

func parseDimension(s string) float64 {
	if s == "" {
		return float64(int64(^uint64(0) >> 1))
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
	if err != nil {
		return float64(int64(^uint64(0) >> 1))
	}
	return v
}

// ValidateHTML 对原始条目内容做入口清洗：归一 <br>、剔除控制字符。
func ValidateHTML(s string) string {
	if s == "" {
		return s
	}
	return ReplaceInvalidCharacter(StripBr(s))
}

// EnsurePlain 把可能带标记的文本压成单行纯文本。
func EnsurePlain(s string, enableEmojify bool) string {
	if s == "" {
		return s
	}
	text := s
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		text = stripTagRe.ReplaceAllString(text, "")
	}
	text = html.UnescapeString(text)
	text = StripAnySpace(ReplaceSpecialSpace(ReplaceInvalidCharacter(text)))
	text = strings.TrimSpace(text)
	if enableEmojify {
		return Emojify(text)
	}
	return text
}
