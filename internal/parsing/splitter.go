package parsing

import (
	"html"
	"regexp"
	"unicode/utf8"
)

var (
	brTagRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTagRe  = regexp.MustCompile(`<[^>]+>`)
	newlineRe = regexp.MustCompile(`\n+`)
)

// HTMLToPlainText 把标记转为纯文本：<br> 变换行，去掉其余标签并解码实体。
func HTMLToPlainText(s string) string {
	if s == "" {
		return ""
	}
	withBreaks := brTagRe.ReplaceAllString(s, "\n")
	return html.UnescapeString(anyTagRe.ReplaceAllString(withBreaks, ""))
}

// PlainTextLength 纯文本字符数（按 Unicode 码点计）。
func PlainTextLength(s string) int {
	return utf8.RuneCountInString(HTMLToPlainText(s))
}

// SplitMessage 供发送层使用的按行切分：优先在换行处断开，
// 单行超长时按 maxLen 硬切。
func SplitMessage(s string, maxLen int) []string {
	if utf8.RuneCountInString(s) <= maxLen {
		return []string{s}
	}
	parts := newlineRe.Split(s, -1)
	var chunks []string
	current := ""
	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + "\n" + part
		}
		if utf8.RuneCountInString(candidate) > maxLen {
			if current != "" {
				chunks = append(chunks, current)
			}
			if utf8.RuneCountInString(part) > maxLen {
				runes := []rune(part)
				for i := 0; i < len(runes); i += maxLen {
					chunks = append(chunks, string(runes[i:min(i+maxLen, len(runes))]))
				}
				current = ""
			} else {
				current = part
			}
		} else {
			current = candidate
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
