// Package parsing 实现内容渲染管线：把订阅条目的原始 HTML 解析为
// 语义富文本树，提取媒体，并按订阅者选项生成最终可发送的消息。
package parsing

import (
	"html"
	"regexp"
	"strings"
)

// RawNode HTML 解析出的原始节点。
// Tag 为空表示文本节点，此时 Data 保存已解码的字符内容。
type RawNode struct {
	Tag      string
	Data     string
	Attrs    map[string]string
	Children []*RawNode
	Parent   *RawNode
	Prev     *RawNode
	Next     *RawNode
}

// IsText 是否为文本节点。
func (n *RawNode) IsText() bool { return n.Tag == "" }

// Attr 读取属性值，不存在返回空串。
func (n *RawNode) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// ChildElements 返回指定标签名的直接子元素。
func (n *RawNode) ChildElements(tag string) []*RawNode {
	var result []*RawNode
	for _, child := range n.Children {
		if child.Tag == tag {
			result = append(result, child)
		}
	}
	return result
}

// voidTags 无内容标签，不入栈。
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true,
	"embed": true, "hr": true, "img": true, "input": true,
	"link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// rawTextTags 原始文本标签，整体跳过直到对应闭合标签。
var rawTextTags = map[string]bool{"script": true, "style": true}

var attrRe = regexp.MustCompile(`([:\w-]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+)))?`)

// ParseHTML 把原始 HTML 解析为节点树，返回顶层节点列表。
// 尽力而为：不平衡、未闭合的标签按最近祖先匹配，
// 无法解析的片段降级为文本，任何输入都不会报错。
func ParseHTML(input string) []*RawNode {
	root := &RawNode{Tag: "root", Attrs: map[string]string{}}
	stack := []*RawNode{root}
	i := 0
	for i < len(input) {
		lt := strings.IndexByte(input[i:], '<')
		if lt == -1 {
			appendText(stack[len(stack)-1], input[i:])
			break
		}
		lt += i
		if lt > i {
			appendText(stack[len(stack)-1], input[i:lt])
		}
		if strings.HasPrefix(input[lt:], "<!--") {
			end := strings.Index(input[lt+4:], "-->")
			if end == -1 {
				i = len(input)
			} else {
				i = lt + 4 + end + 3
			}
			continue
		}
		gt := strings.IndexByte(input[lt+1:], '>')
		if gt == -1 {
			break
		}
		gt += lt + 1
		tagContent := input[lt+1 : gt]
		isClosing := strings.HasPrefix(strings.TrimSpace(tagContent), "/")
		isSelfClosing := selfClosingRe.MatchString(tagContent)
		tagContent = strings.TrimSpace(trailingSlashRe.ReplaceAllString(leadingSlashRe.ReplaceAllString(tagContent, ""), ""))
		spaceIdx := strings.IndexFunc(tagContent, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
		})
		var tagName, attrString string
		if spaceIdx == -1 {
			tagName = strings.ToLower(tagContent)
		} else {
			tagName = strings.ToLower(tagContent[:spaceIdx])
			attrString = tagContent[spaceIdx+1:]
		}

		if tagName == "" || strings.HasPrefix(tagName, "!") {
			i = gt + 1
			continue
		}

		if isClosing {
			for s := len(stack) - 1; s >= 1; s-- {
				if stack[s].Tag == tagName {
					stack = stack[:s]
					break
				}
			}
			i = gt + 1
			continue
		}

		if rawTextTags[tagName] {
			closeTag := "</" + tagName + ">"
			end := strings.Index(input[gt+1:], closeTag)
			if end == -1 {
				i = len(input)
			} else {
				i = gt + 1 + end + len(closeTag)
			}
			continue
		}

		element := &RawNode{Tag: tagName, Attrs: parseAttributes(attrString)}
		appendChild(stack[len(stack)-1], element)
		if !isSelfClosing && !voidTags[tagName] {
			stack = append(stack, element)
		}
		i = gt + 1
	}
	return root.Children
}

var (
	selfClosingRe   = regexp.MustCompile(`/\s*$`)
	leadingSlashRe  = regexp.MustCompile(`^\s*/`)
	trailingSlashRe = regexp.MustCompile(`\s*/\s*$`)
)

func appendChild(parent *RawNode, child *RawNode) {
	siblings := parent.Children
	if len(siblings) > 0 {
		prev := siblings[len(siblings)-1]
		prev.Next = child
		child.Prev = prev
	}
	child.Parent = parent
	parent.Children = append(parent.Children, child)
}

func appendText(parent *RawNode, text string) {
	if text == "" {
		return
	}
	appendChild(parent, &RawNode{Data: html.UnescapeString(text)})
}

func parseAttributes(input string) map[string]string {
	attrs := map[string]string{}
	if input == "" {
		return attrs
	}
	for _, idx := range attrRe.FindAllStringSubmatchIndex(input, -1) {
		key := input[idx[2]:idx[3]]
		// 无值属性取属性名本身作为值
		value := key
		for _, g := range []int{2, 3, 4} {
			if idx[2*g] >= 0 {
				value = input[idx[2*g]:idx[2*g+1]]
				break
			}
		}
		attrs[key] = html.UnescapeString(value)
	}
	return attrs
}
