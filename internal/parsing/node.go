package parsing

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NodeKind 语义节点类型判别值。
type NodeKind int

const (
	KindText NodeKind = iota
	KindLink
	KindBold
	KindItalic
	KindUnderline
	KindStrike
	KindBlockquote
	KindCode
	KindPre
	KindBr
	KindHr
	KindListItem
	KindOrderedList
	KindUnorderedList
)

// tagMeta 节点类型对应的输出标签与属性名。
type tagMeta struct {
	tag  string
	attr string
}

var kindMeta = map[NodeKind]tagMeta{
	KindLink:       {tag: "a", attr: "href"},
	KindBold:       {tag: "b"},
	KindItalic:     {tag: "i"},
	KindUnderline:  {tag: "u"},
	KindStrike:     {tag: "s"},
	KindBlockquote: {tag: "blockquote"},
	KindCode:       {tag: "code", attr: "class"},
	KindPre:        {tag: "pre"},
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Node 语义富文本树节点。
// 内容三选一：标量文本 text、单个子节点 child、子节点序列 list，
// 构造后不可变（列表的编号/缩进处理在构造时一次完成）。
type Node struct {
	kind  NodeKind
	text  string
	child *Node
	list  []*Node
	param string
}

// PlainText 构造纯文本节点，内容做 HTML 转义。
func PlainText(s string) *Node {
	return &Node{kind: KindText, text: textEscaper.Replace(s)}
}

// Seq 构造持有有序子节点序列的纯文本节点。
func Seq(nodes ...*Node) *Node {
	list := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			list = append(list, n)
		}
	}
	return &Node{kind: KindText, list: list}
}

// wrap 以指定类型包装 content。与 content 同类型或 content 为纯文本
// 节点时直接吸收其内容，避免 <b><b>…</b></b> 一类的重复嵌套。
func wrap(kind NodeKind, content *Node, param string) *Node {
	n := &Node{kind: kind, param: param}
	if content == nil {
		return n
	}
	if content.kind == kind || content.kind == KindText {
		n.text = content.text
		n.child = content.child
		n.list = content.list
	} else {
		n.child = content
	}
	if n.child != nil && n.list != nil {
		panic("parsing: node has both scalar and sequence content")
	}
	return n
}

// Bold 加粗。
func Bold(content *Node) *Node { return wrap(KindBold, content, "") }

// Italic 斜体。
func Italic(content *Node) *Node { return wrap(KindItalic, content, "") }

// Underline 下划线。
func Underline(content *Node) *Node { return wrap(KindUnderline, content, "") }

// Strike 删除线。
func Strike(content *Node) *Node { return wrap(KindStrike, content, "") }

// Blockquote 块引用。
func Blockquote(content *Node) *Node { return wrap(KindBlockquote, content, "") }

// Code 行内代码，language 为可选的语言提示（class 属性）。
func Code(content *Node, language string) *Node { return wrap(KindCode, content, language) }

// Pre 代码块。
func Pre(content *Node) *Node { return wrap(KindPre, content, "") }

// Link 超链接。
func Link(content *Node, href string) *Node { return wrap(KindLink, content, href) }

// LinkText 文本超链接。
func LinkText(text, href string) *Node { return Link(PlainText(text), href) }

// Br 换行，count 小于 1 时按 1 处理。
func Br(count int) *Node {
	if count < 1 {
		count = 1
	}
	return &Node{kind: KindBr, text: strings.Repeat("\n", count)}
}

// Hr 水平分隔线。
func Hr() *Node {
	return &Node{kind: KindHr, text: "\n----------------------\n"}
}

// ListItem 列表项。构造时把嵌套列表重新缩进 4 空格，
// 并去掉最后一个嵌套项的尾部换行。
func ListItem(content *Node) *Node {
	n := wrap(KindListItem, content, "")
	for _, nested := range n.findKind(isListParent, false) {
		nested.RStrip(false)
		items := nested.findKind(isListItem, true)
		if len(items) == 0 {
			return n
		}
		for _, item := range items {
			item.setSequence([]*Node{{kind: KindText, text: "    "}, item.asText()})
		}
		items[len(items)-1].RStrip(true)
	}
	return n
}

// OrderedList 有序列表，构造时为每个列表项注入加粗的 "N. " 前缀和尾部换行。
func OrderedList(children ...*Node) *Node {
	n := &Node{kind: KindOrderedList, list: children}
	for i, item := range n.findKind(isListItem, true) {
		prefix := Bold(PlainText(fmt.Sprintf("%d. ", i+1)))
		item.setSequence([]*Node{prefix, item.asText(), Br(1)})
	}
	return n
}

// UnorderedList 无序列表，构造时为每个列表项注入圆点前缀和尾部换行。
func UnorderedList(children ...*Node) *Node {
	n := &Node{kind: KindUnorderedList, list: children}
	for _, item := range n.findKind(isListItem, true) {
		prefix := Bold(PlainText("● "))
		item.setSequence([]*Node{prefix, item.asText(), Br(1)})
	}
	return n
}

func isListParent(k NodeKind) bool { return k == KindOrderedList || k == KindUnorderedList }
func isListItem(k NodeKind) bool   { return k == KindListItem }

// Kind 返回节点类型。
func (n *Node) Kind() NodeKind { return n.kind }

func (n *Node) isNested() bool { return n.child != nil || n.list != nil }
func (n *Node) isListed() bool { return n.list != nil }

// asText 返回一个持有相同内容的纯文本节点。
func (n *Node) asText() *Node {
	return &Node{kind: KindText, text: n.text, child: n.child, list: n.list}
}

// setSequence 列表后处理专用：用新序列替换节点内容。
func (n *Node) setSequence(list []*Node) {
	n.text = ""
	n.child = nil
	n.list = list
}

// HTML 渲染为最终标记。plain 为真时省略所有标签（Br/Hr 渲染为空）。
func (n *Node) HTML(plain bool) string {
	var result string
	switch {
	case n.isListed():
		var b strings.Builder
		for _, sub := range n.list {
			b.WriteString(sub.HTML(plain))
		}
		result = b.String()
	case n.child != nil:
		result = n.child.HTML(plain)
	default:
		result = n.text
	}
	if plain {
		if n.kind == KindBr || n.kind == KindHr {
			return ""
		}
		return result
	}
	return n.wrapHTML(result)
}

// wrapHTML 给已渲染内容加上本节点的标签包装。
func (n *Node) wrapHTML(inner string) string {
	meta, ok := kindMeta[n.kind]
	if !ok || meta.tag == "" {
		return inner
	}
	if meta.attr != "" && n.param != "" {
		return fmt.Sprintf(`<%s %s="%s">%s</%s>`, meta.tag, meta.attr, n.param, inner, meta.tag)
	}
	return fmt.Sprintf("<%s>%s</%s>", meta.tag, inner, meta.tag)
}

// Length 返回所有后代文本内容的字符数（按 Unicode 码点计），与包装标签无关。
func (n *Node) Length() int {
	switch {
	case n.isListed():
		sum := 0
		for _, sub := range n.list {
			sum += sub.Length()
		}
		return sum
	case n.child != nil:
		return n.child.Length()
	default:
		return utf8.RuneCountInString(n.text)
	}
}

// Strip 去掉两端空白：标量去空白字符，序列去掉首尾的换行节点。
// deeper 为真时递归处理子节点。
func (n *Node) Strip(deeper, stripL, stripR bool) {
	if !n.isNested() {
		if stripL {
			n.text = strings.TrimLeft(n.text, " \t\r\n\v\f")
		}
		if stripR {
			n.text = strings.TrimRight(n.text, " \t\r\n\v\f")
		}
		return
	}
	if !n.isListed() {
		if deeper {
			n.child.Strip(deeper, stripL, stripR)
		}
		return
	}
	for stripL && len(n.list) > 0 && n.list[0].kind == KindBr {
		n.list = n.list[1:]
	}
	for stripR && len(n.list) > 0 && n.list[len(n.list)-1].kind == KindBr {
		n.list = n.list[:len(n.list)-1]
	}
	if deeper {
		for _, sub := range n.list {
			sub.Strip(deeper, stripL, stripR)
		}
	}
}

// StripBoth 去掉两端空白。
func (n *Node) StripBoth() { n.Strip(false, true, true) }

// LStrip 去掉左端空白。
func (n *Node) LStrip(deeper bool) { n.Strip(deeper, true, false) }

// RStrip 去掉右端空白。
func (n *Node) RStrip(deeper bool) { n.Strip(deeper, false, true) }

// IsEmpty 是否没有可见内容。allowWhitespace 为真时空白也算内容。
func (n *Node) IsEmpty(allowWhitespace bool) bool {
	if n.isListed() {
		for _, sub := range n.list {
			if !sub.IsEmpty(allowWhitespace) {
				return false
			}
		}
		return true
	}
	if n.child != nil {
		return n.child.IsEmpty(allowWhitespace)
	}
	if n.text == "" {
		return true
	}
	return !allowWhitespace && strings.TrimSpace(n.text) == ""
}

// findKind 收集满足条件的节点。shallow 为真且内容为序列时只检查直接子节点。
func (n *Node) findKind(match func(NodeKind) bool, shallow bool) []*Node {
	var result []*Node
	if match(n.kind) {
		result = append(result, n)
	}
	if n.isListed() {
		if shallow {
			var direct []*Node
			for _, sub := range n.list {
				if match(sub.kind) {
					direct = append(direct, sub)
				}
			}
			return direct
		}
		for _, sub := range n.list {
			result = append(result, sub.findKind(match, false)...)
		}
		return result
	}
	if n.child != nil {
		result = append(result, n.child.findKind(match, shallow)...)
	}
	return result
}

// SplitHTML 把节点拆分为长度受限的已渲染片段。
// 前 headCount 个片段受 headLimit 约束，其余受 tailLimit 约束；
// headCount 为 -1 表示始终使用 headLimit。每个片段都重新包上
// 本节点自身的标签，保证单独可解析。
func (n *Node) SplitHTML(headLimit, headCount, tailLimit int) []string {
	if headLimit < 2 {
		headLimit = 2
	}
	var chunks []string
	if n.isListed() {
		length := 0
		splitCount := 0
		result := ""
		for _, sub := range n.list {
			currLength := sub.Length()
			currLimit := headLimit
			if headCount != -1 && splitCount >= headCount {
				currLimit = tailLimit
			}
			if length+currLength >= currLimit && result != "" {
				if stripped := strings.TrimSpace(result); stripped != "" {
					splitCount++
					chunks = append(chunks, stripped)
				}
				result = ""
				length = 0
			}
			if currLength >= currLimit {
				subChunks := sub.SplitHTML(currLimit, -1, tailLimit)
				splitCount += len(subChunks)
				chunks = append(chunks, subChunks...)
				continue
			}
			length += currLength
			result += sub.HTML(false)
		}
		if stripped := strings.TrimSpace(result); stripped != "" {
			chunks = append(chunks, stripped)
		}
		return n.wrapChunks(chunks)
	}

	if n.child != nil {
		return n.wrapChunks(n.child.SplitHTML(headLimit, -1, tailLimit))
	}

	value := []rune(n.text)
	if len(value) >= headLimit {
		step := headLimit - 1
		for i := 0; i < len(value); i += step {
			chunks = append(chunks, string(value[i:min(i+step, len(value))]))
		}
	} else {
		chunks = append(chunks, n.text)
	}
	return n.wrapChunks(chunks)
}

func (n *Node) wrapChunks(chunks []string) []string {
	meta, ok := kindMeta[n.kind]
	if !ok || meta.tag == "" {
		return chunks
	}
	wrapped := make([]string, len(chunks))
	for i, chunk := range chunks {
		wrapped[i] = n.wrapHTML(chunk)
	}
	return wrapped
}

// String 渲染为最终标记。
func (n *Node) String() string { return n.HTML(false) }
