package parsing

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	motionExtRe   = regexp.MustCompile(`(?i)(\.gif|\.gifv|\.webm|\.mp4|\.m4v)$`)
	srcsetDescrRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)([wx])$`)
)

// ConvertResult HTML 转换结果。
type ConvertResult struct {
	// Tree 语义富文本树。
	Tree *Node
	// Media 转换过程中提取到的媒体。
	Media *Media
	// HTML 清洗后的最终标记（去掉多余换行和行尾空白）。
	HTML string
}

// ConvertHTML 把条目原始 HTML 转换为语义富文本树并提取媒体。
// baseLink 用于解析相对链接。转换永不失败：不支持的结构降级为纯文本或被丢弃。
func ConvertHTML(raw, baseLink string) *ConvertResult {
	c := &converter{feedLink: baseLink, media: &Media{}}
	tree := c.convertList(ParseHTML(raw), false)
	if tree == nil {
		tree = PlainText("")
	} else {
		tree = wrap(KindText, tree, "")
	}
	rendered := StripNewline(StripLineEnd(strings.TrimSpace(tree.HTML(false))))
	return &ConvertResult{Tree: tree, Media: c.media, HTML: rendered}
}

type converter struct {
	feedLink string
	media    *Media
}

// effectiveLink 生成安全的链接节点：脚本协议降级为纯文本，
// 非绝对 http 链接渲染为文本加行内代码形式的路径，避免出现不可点击的死链。
func (c *converter) effectiveLink(content *Node, href string) *Node {
	if strings.HasPrefix(href, "javascript") {
		return content
	}
	resolved := ResolveRelativeLink(c.feedLink, href)
	if !IsAbsoluteHTTPLink(resolved) {
		return Seq(
			PlainText(content.HTML(false)+" ("),
			Code(PlainText(resolved), ""),
			PlainText(")"),
		)
	}
	return Link(content, resolved)
}

// convertList 依次转换兄弟节点。任一侧来自 div 块且相邻渲染结果
// 没有换行衔接时补一个换行，避免块内容连排。
func (c *converter) convertList(nodes []*RawNode, inList bool) *Node {
	var result []*Node
	prevTag := ""
	for _, child := range nodes {
		item := c.convertNode(child, inList)
		if item == nil {
			continue
		}
		tagName := child.Tag
		if (tagName == "div" || prevTag == "div") && len(result) > 0 {
			last := result[len(result)-1].HTML(false)
			curr := item.HTML(false)
			if !strings.HasSuffix(last, "\n") && !strings.HasPrefix(curr, "\n") {
				result = append(result, Br(1))
			}
		}
		result = append(result, item)
		prevTag = tagName
	}
	if len(result) == 0 {
		return nil
	}
	if len(result) == 1 {
		return result[0]
	}
	return Seq(result...)
}

func (c *converter) convertNode(n *RawNode, inList bool) *Node {
	if n.IsText() {
		if n.Data == "" {
			return nil
		}
		return PlainText(Emojify(n.Data))
	}

	switch tag := n.Tag; tag {
	case "", "script", "style":
		return nil

	case "table":
		return c.convertTable(n, inList)

	case "p", "section":
		text := c.convertList(n.Children, inList)
		if text == nil {
			return nil
		}
		if n.Parent != nil && n.Parent.Tag == "li" {
			return text
		}
		texts := []*Node{text}
		if !(n.Prev != nil && n.Prev.Tag == "blockquote") {
			texts = append([]*Node{Br(1)}, texts...)
		}
		if !(n.Next != nil && n.Next.Tag == "blockquote") {
			texts = append(texts, Br(1))
		}
		if len(texts) > 1 {
			return Seq(texts...)
		}
		return text

	case "blockquote":
		quote := c.convertList(n.Children, inList)
		if quote == nil {
			return nil
		}
		quote.StripBoth()
		if quote.IsEmpty(false) {
			return nil
		}
		return Blockquote(quote)

	case "q":
		quote := c.convertList(n.Children, inList)
		if quote == nil {
			return nil
		}
		quote.StripBoth()
		if quote.IsEmpty(false) {
			return nil
		}
		inner := quote
		if cite := n.Attr("cite"); cite != "" {
			inner = c.effectiveLink(quote, cite)
		}
		return Seq(PlainText("“"), inner, PlainText("”"))

	case "pre":
		return Pre(c.convertList(n.Children, inList))

	case "code":
		language := ""
		if cls := n.Attr("class"); cls != "" {
			parts := strings.Fields(cls)
			for _, part := range parts {
				if strings.HasPrefix(part, "language-") {
					language = part
					break
				}
			}
			if language == "" && len(parts) > 0 {
				language = "language-" + parts[0]
			}
		}
		return Code(c.convertList(n.Children, inList), language)

	case "br":
		return Br(1)

	case "a":
		text := c.convertList(n.Children, inList)
		if text == nil || text.IsEmpty(false) {
			return nil
		}
		href := n.Attr("href")
		if href == "" {
			return nil
		}
		return c.effectiveLink(text, href)

	case "img":
		return c.convertImage(n)

	case "video":
		if multiSrc := c.collectMultiSrc(n); len(multiSrc) > 0 {
			poster := n.Attr("poster")
			if poster != "" {
				poster = ResolveRelativeLink(c.feedLink, poster)
			}
			c.media.Add(NewVideo(poster, multiSrc...))
		}
		return nil

	case "audio":
		if multiSrc := c.collectMultiSrc(n); len(multiSrc) > 0 {
			c.media.Add(NewAudio(multiSrc...))
		}
		return nil

	case "b", "strong":
		if text := c.convertList(n.Children, inList); text != nil {
			return Bold(text)
		}
		return nil

	case "i", "em":
		if text := c.convertList(n.Children, inList); text != nil {
			return Italic(text)
		}
		return nil

	case "u", "ins":
		if text := c.convertList(n.Children, inList); text != nil {
			return Underline(text)
		}
		return nil

	case "s", "strike", "del":
		if text := c.convertList(n.Children, inList); text != nil {
			return Strike(text)
		}
		return nil

	case "h1":
		if text := c.convertList(n.Children, inList); text != nil {
			return Seq(Br(2), Bold(Underline(text)), Br(1))
		}
		return nil

	case "h2":
		if text := c.convertList(n.Children, inList); text != nil {
			return Seq(Br(2), Bold(text), Br(1))
		}
		return nil

	case "hr":
		return Hr()

	case "iframe":
		src := n.Attr("src")
		if src == "" {
			return nil
		}
		resolved := ResolveRelativeLink(c.feedLink, src)
		label := PlainText("iframe (" + urlHostname(resolved) + ")")
		return Seq(Br(2), c.effectiveLink(label, resolved), Br(2))

	case "ol", "ul", "menu", "dir":
		items := n.ChildElements("li")
		if len(items) == 0 {
			return nil
		}
		var texts []*Node
		for _, item := range items {
			if text := c.convertNode(item, true); text != nil {
				texts = append(texts, text)
			}
		}
		if len(texts) == 0 {
			return nil
		}
		children := append([]*Node{Br(1)}, append(texts, Br(1))...)
		if tag == "ol" {
			return OrderedList(children...)
		}
		return UnorderedList(children...)

	case "li":
		text := c.convertList(n.Children, true)
		if text == nil {
			return nil
		}
		text.Strip(true, true, true)
		if strings.TrimSpace(text.HTML(false)) == "" {
			return nil
		}
		if inList {
			return ListItem(text)
		}
		return UnorderedList(Br(1), ListItem(text), Br(1))

	default:
		// 其余标题（h3-h6）加下划线，未知标签只转换其子节点
		if len(tag) == 2 && tag[0] == 'h' {
			if text := c.convertList(n.Children, inList); text != nil {
				return Seq(Br(2), Underline(text), Br(1))
			}
			return nil
		}
		return c.convertList(n.Children, inList)
	}
}

// convertTable 表格只支持单列（每行至多一列，或只有一行），
// 渲染为以双换行分隔的堆叠单元格；多行多列表格没有忠实的单列
// 文本表示，整体丢弃。
func (c *converter) convertTable(n *RawNode, inList bool) *Node {
	rows := n.ChildElements("tr")
	if len(rows) == 0 {
		return nil
	}
	var content []*Node
	for i, row := range rows {
		var columns []*RawNode
		for _, child := range row.Children {
			if child.Tag == "td" || child.Tag == "th" {
				columns = append(columns, child)
			}
		}
		if len(rows) > 1 && len(columns) > 1 {
			return nil
		}
		for j, column := range columns {
			cell := c.convertNode(column, inList)
			if cell == nil {
				continue
			}
			content = append(content, cell)
			if i < len(rows)-1 || j < len(columns)-1 {
				content = append(content, Br(2))
			}
		}
	}
	if len(content) == 0 {
		return nil
	}
	return Seq(content...)
}

// convertImage 表情图标用 alt 文本代替，其余注册到媒体集合；
// img 本身不产生可见文本。
func (c *converter) convertImage(n *RawNode) *Node {
	src := n.Attr("src")
	srcset := n.Attr("srcset")
	if src == "" && srcset == "" {
		return nil
	}
	if IsEmoticon(n) {
		if alt := n.Attr("alt"); alt != "" {
			return PlainText(Emojify(alt))
		}
		return nil
	}

	var multiSrc []string
	if srcset != "" {
		multiSrc = preferSrcset(srcset, src)
	} else if src != "" {
		multiSrc = []string{src}
	}

	var resolved []string
	isMotion := false
	for _, u := range multiSrc {
		if u == "" {
			continue
		}
		r := ResolveRelativeLink(c.feedLink, u)
		if motionExtRe.MatchString(urlPath(r)) {
			isMotion = true
		}
		resolved = append(resolved, r)
	}
	if len(resolved) > 0 {
		if isMotion {
			c.media.Add(NewAnimation(resolved...))
		} else {
			c.media.Add(NewImage(resolved...))
		}
	}
	return nil
}

type srcCandidate struct {
	url    string
	number float64
	unit   string
}

// preferSrcset 解析 srcset 候选，按像素密度/宽度从高到低排出偏好序列，
// 并把旧式 src 作为 1x 候选参与配对。
func preferSrcset(srcset, src string) []string {
	var candidates []srcCandidate
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		cand := srcCandidate{url: fields[0], number: 1, unit: "x"}
		if len(fields) > 1 {
			if m := srcsetDescrRe.FindStringSubmatch(fields[1]); m != nil {
				cand.number, _ = strconv.ParseFloat(m[1], 64)
				cand.unit = m[2]
			}
		}
		candidates = append(candidates, cand)
	}
	if src != "" {
		candidates = append(candidates, srcCandidate{url: src, number: 1, unit: "x"})
	}

	var unitW, unitX []srcCandidate
	for _, cand := range candidates {
		if cand.unit == "w" {
			unitW = append(unitW, cand)
		} else {
			unitX = append(unitX, cand)
		}
	}
	sort.SliceStable(unitW, func(i, j int) bool { return unitW[i].number > unitW[j].number })
	sort.SliceStable(unitX, func(i, j int) bool { return unitX[i].number > unitX[j].number })

	var multiSrc []string
	for len(unitW) > 0 || len(unitX) > 0 {
		if len(unitW) > 0 {
			multiSrc = append(multiSrc, unitW[0].url)
			unitW = unitW[1:]
		}
		if len(unitX) > 0 {
			srcX := unitX[0]
			unitX = unitX[1:]
			if srcX.number <= 1 && len(unitW) > 0 {
				unitX = append([]srcCandidate{srcX}, unitX...)
				continue
			}
			multiSrc = append(multiSrc, srcX.url)
		}
	}
	return multiSrc
}

// collectMultiSrc 收集 video/audio 的 source 子元素及顶层 src。
func (c *converter) collectMultiSrc(n *RawNode) []string {
	var sources []string
	for _, child := range n.ChildElements("source") {
		if src := child.Attr("src"); src != "" {
			sources = append(sources, src)
		}
	}
	if src := n.Attr("src"); src != "" {
		sources = append(sources, src)
	}
	var resolved []string
	for _, u := range sources {
		if r := ResolveRelativeLink(c.feedLink, u); r != "" {
			resolved = append(resolved, r)
		}
	}
	return resolved
}
