package parsing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// 选项码取值，含义见各 Display* 字段。
const (
	// OptionInherit 继承上级默认值的哨兵。
	OptionInherit = -100

	Auto         = 0
	Disable      = -1
	ForceDisplay = 1
	ForceEnable  = 1

	SendModeAuto           = 0
	SendModeForceTelegraph = 1
	SendModeForceMessage   = 2
	SendModeForceLink      = -1

	ViaFeedTitleAndLink     = 0
	ViaFeedTitleAsPostTitle = 1
	ViaLinkAsPostTitle      = -3
	ViaTextLink             = -1
	ViaBareLink             = -4
	ViaCompletelyDisable    = -2

	MediaOnlyNoContent = 1

	StyleDefault  = 0
	StyleFlowerss = 1
)

// 标题与正文相似度达到该值时认为标题与正文重复，自动模式下不再显示标题。
const titleSimilarityThreshold = 90

type viaType int

const (
	noVia viaType = iota
	feedTitleViaNoLink
	feedTitleViaWithLink
	textLinkVia
	bareLinkVia
)

type postTitleType int

const (
	noPostTitle postTitleType = iota
	postTitleNoLink
	postTitleWithLink
)

type messageType int

const (
	normalMessage messageType = iota
	telegraphMessage
	linkMessage
)

type messageStyle int

const (
	normalStyle messageStyle = iota
	flowerssStyle
)

// Enclosure 条目附带的附件元数据。
type Enclosure struct {
	URL       string
	Type      string
	Length    int64
	Duration  string
	Thumbnail string
}

// TelegraphCreator 长文页面协作方：把完整条目渲染为外部托管页面。
type TelegraphCreator interface {
	CreatePage(ctx context.Context, title, html string) (string, error)
}

// FormatterConfig PostFormatter 的外部依赖。
type FormatterConfig struct {
	// WeservBase weserv 图片代理地址，用于转换平台不支持的图片格式。
	WeservBase string
	// Telegraph 长文页面服务，nil 表示不可用。
	Telegraph TelegraphCreator
}

// FormatOptions 已解析的订阅者格式化选项（上游已合并默认值与覆盖值）。
type FormatOptions struct {
	SubTitle        string
	Tags            []string
	SendMode        int
	LengthLimit     int
	LinkPreview     int
	DisplayAuthor   int
	DisplayVia      int
	DisplayTitle    int
	DisplayEntryTags int
	Style           int
	DisplayMedia    int
}

// Rendered 单次格式化的最终产物。
type Rendered struct {
	HTML            string
	NeedMedia       bool
	NeedLinkPreview bool
}

// PostFormatter 针对单个条目的格式化决策器。
// 同一条目会被多个订阅者以不同选项格式化，解析结果、Telegraph
// 页面和决策结果都按实例记忆；内部用互斥锁保护缓存，
// 多个订阅者可以并发复用同一实例。
type PostFormatter struct {
	mu sync.Mutex

	html       string
	title      string
	feedTitle  string
	link       string
	author     string
	tags       []string
	feedLink   string
	enclosures []Enclosure
	cfg        FormatterConfig

	parsed           bool
	tree             *Node
	media            *Media
	enclosureMediums []*Medium
	parsedHTML       string
	plainLength      int
	tagsEscaped      []string
	titleSimilarity  int

	telegraphLink  string
	telegraphState int // 0 未尝试，1 成功，-1 失败或不可用

	postBucket    map[string]*Rendered
	paramToOption map[string]string
}

// NewPostFormatter 构造条目格式化器。
func NewPostFormatter(html, title, feedTitle, link, author string, tags []string, feedLink string, enclosures []Enclosure, cfg FormatterConfig) *PostFormatter {
	return &PostFormatter{
		html:            html,
		title:           title,
		feedTitle:       feedTitle,
		link:            link,
		author:          author,
		tags:            tags,
		feedLink:        feedLink,
		enclosures:      enclosures,
		cfg:             cfg,
		titleSimilarity: -1,
		postBucket:      map[string]*Rendered{},
		paramToOption:   map[string]string{},
	}
}

// Media 返回解析后收集到的媒体集合，尚未解析时为 nil。
func (p *PostFormatter) Media() *Media {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.media
}

// GetFormattedPost 按订阅者选项生成最终消息。
// 返回 nil 表示该条目对这组选项没有可发送的内容。
// 相同选项（或解析到相同决策）的重复调用命中缓存，结果逐字节一致。
func (p *PostFormatter) GetFormattedPost(ctx context.Context, opts FormatOptions) *Rendered {
	p.mu.Lock()
	defer p.mu.Unlock()

	subTitle := opts.SubTitle
	if subTitle == "" {
		subTitle = p.feedTitle
	}
	tags := opts.Tags

	paramHash := strings.Join([]string{
		subTitle,
		strings.Join(tags, ","),
		strconv.Itoa(opts.SendMode),
		strconv.Itoa(opts.LengthLimit),
		strconv.Itoa(opts.LinkPreview),
		strconv.Itoa(opts.DisplayAuthor),
		strconv.Itoa(opts.DisplayVia),
		strconv.Itoa(opts.DisplayTitle),
		strconv.Itoa(opts.DisplayEntryTags),
		strconv.Itoa(opts.DisplayMedia),
		strconv.Itoa(opts.Style),
	}, "|")
	if optionHash, ok := p.paramToOption[paramHash]; ok {
		if post, ok := p.postBucket[optionHash]; ok {
			return post
		}
	}

	if !p.parsed {
		p.parseContent()
	}

	// via 类型
	var via viaType
	switch {
	case opts.DisplayVia == ViaCompletelyDisable || (subTitle == "" && p.link == ""):
		via = noVia
	case opts.DisplayVia == ViaBareLink && p.link != "":
		via = bareLinkVia
	case opts.DisplayVia == ViaTextLink && p.link != "":
		via = textLinkVia
	case opts.DisplayVia == ViaFeedTitleAsPostTitle && subTitle != "":
		via = feedTitleViaNoLink
	case opts.DisplayVia == ViaLinkAsPostTitle:
		via = noVia
	case opts.DisplayVia == ViaFeedTitleAndLink && subTitle != "":
		via = feedTitleViaWithLink
	case opts.DisplayVia == ViaFeedTitleAndLink && subTitle == "" && p.link != "":
		via = textLinkVia
	default:
		via = noVia
	}

	// 标题与正文相似度只在自动模式下计算一次
	if p.title != "" && p.titleSimilarity < 0 && opts.DisplayTitle == Auto && p.tree != nil {
		p.titleSimilarity = p.computeTitleSimilarity()
	}

	// 标题类型
	var titleTyp postTitleType
	switch {
	case (opts.DisplayVia == ViaFeedTitleAsPostTitle || opts.DisplayVia == ViaLinkAsPostTitle) && p.link != "":
		titleTyp = postTitleWithLink
	case opts.DisplayTitle != Disable && p.title != "" &&
		(opts.DisplayTitle == ForceDisplay || (opts.DisplayTitle == Auto && p.titleSimilarity < titleSimilarityThreshold)):
		titleTyp = postTitleNoLink
	default:
		titleTyp = noPostTitle
	}

	// 作者署名：已包含在显示的订阅源标题里时不再重复
	needAuthor := opts.DisplayAuthor != Disable && p.author != "" &&
		(opts.DisplayAuthor == ForceDisplay ||
			(opts.DisplayAuthor == Auto &&
				(subTitle == "" || !strings.Contains(subTitle, p.author) ||
					(via != feedTitleViaNoLink && via != feedTitleViaWithLink))))

	if opts.DisplayEntryTags == ForceDisplay {
		if p.tagsEscaped == nil {
			p.tagsEscaped = EscapeHashtags(p.tags)
		}
		if len(p.tagsEscaped) > 0 {
			tags = MergeTags(tags, p.tagsEscaped)
		}
	}

	style := normalStyle
	if opts.Style == StyleFlowerss {
		style = flowerssStyle
	}

	// 消息类型
	var msgType messageType
	normalMsgPost := ""
	hasNormalMsg := false
	switch {
	case opts.SendMode == SendModeForceMessage:
		msgType = normalMessage
	case opts.SendMode == SendModeForceLink && p.link != "":
		msgType = linkMessage
	case opts.SendMode == SendModeForceTelegraph && p.telegraphState >= 0:
		msgType = telegraphMessage
	case opts.SendMode == SendModeForceTelegraph:
		if p.link != "" {
			msgType = linkMessage
			titleTyp = postTitleWithLink
		} else {
			msgType = normalMessage
		}
	default:
		mediaMsgCount := 0
		if opts.DisplayMedia != Disable {
			mediaMsgCount = p.media.EstimateMessageCounts()
		}
		normalMsgPost = p.generateFormattedPost(subTitle, tags, titleTyp, via, needAuthor, normalMessage, style)
		hasNormalMsg = true
		normalMsgLen := PlainTextLength(normalMsgPost)
		hardCap := 4096
		if mediaMsgCount > 0 {
			hardCap = 1024
		}
		tooLong := (opts.LengthLimit > 0 && opts.LengthLimit <= p.plainLength) || normalMsgLen > hardCap
		if (opts.DisplayMedia != MediaOnlyNoContent && tooLong) || mediaMsgCount > 1 {
			msgType = telegraphMessage
		} else {
			msgType = normalMessage
		}
	}

	if msgType == telegraphMessage && p.telegraphState == 0 {
		p.telegraphify(ctx)
	}
	if msgType == telegraphMessage && p.telegraphState < 0 {
		// 长文页面不可用时降级，条目绝不静默丢弃
		if p.link != "" {
			msgType = linkMessage
			if opts.SendMode == SendModeForceTelegraph {
				titleTyp = postTitleWithLink
			}
		} else {
			msgType = normalMessage
		}
	}

	if msgType == linkMessage && titleTyp == noPostTitle && via == noVia {
		titleTyp = postTitleWithLink
	}
	if msgType == normalMessage && opts.DisplayMedia == MediaOnlyNoContent {
		msgType = linkMessage
	}
	if titleTyp == noPostTitle && p.title != "" && opts.DisplayTitle == Auto &&
		(msgType == telegraphMessage || msgType == linkMessage) {
		titleTyp = postTitleNoLink
	}

	needMedia := p.media.HasMedia() &&
		((msgType == normalMessage && opts.DisplayMedia != Disable) ||
			(msgType == linkMessage && opts.DisplayMedia == MediaOnlyNoContent))
	needLinkPreview := opts.LinkPreview != Disable &&
		(opts.LinkPreview == ForceEnable || msgType != normalMessage)

	optionHash := strings.Join([]string{
		subTitle,
		strings.Join(tags, ","),
		strconv.Itoa(int(titleTyp)),
		strconv.Itoa(int(via)),
		strconv.FormatBool(needAuthor),
		strconv.Itoa(int(msgType)),
		strconv.Itoa(int(style)),
	}, "|")
	p.paramToOption[paramHash] = optionHash

	if post, ok := p.postBucket[optionHash]; ok {
		return post
	}

	// 没有任何可见内容时不发送
	if (msgType == normalMessage && opts.DisplayMedia == MediaOnlyNoContent && !needMedia) ||
		(p.parsedHTML == "" && !needMedia && via == noVia && titleTyp == noPostTitle && !needAuthor) {
		p.postBucket[optionHash] = nil
		return nil
	}

	if msgType == normalMessage && hasNormalMsg {
		post := &Rendered{HTML: normalMsgPost, NeedMedia: needMedia, NeedLinkPreview: needLinkPreview}
		p.postBucket[optionHash] = post
		return post
	}

	post := &Rendered{
		HTML:            p.generateFormattedPost(subTitle, tags, titleTyp, via, needAuthor, msgType, style),
		NeedMedia:       needMedia,
		NeedLinkPreview: needLinkPreview,
	}
	p.postBucket[optionHash] = post
	return post
}

// computeTitleSimilarity 归一化标题与正文开头后计算最佳窗口相似度。
func (p *PostFormatter) computeTitleSimilarity() int {
	plainText := StripAnySpace(p.tree.HTML(true))
	titleTbc := p.title
	// 去掉常见的平台样板前后缀与省略号
	titleTbc = strings.Replace(titleTbc, "[图片]", "", 1)
	titleTbc = strings.Replace(titleTbc, "[视频]", "", 1)
	titleTbc = strings.Replace(titleTbc, "发布了: ", "", 1)
	titleTbc = strings.TrimSpace(titleTbc)
	titleTbc = trailingDotsRe.ReplaceAllString(titleTbc, "")
	titleTbc = StripAnySpace(titleTbc)
	sample := []rune(plainText)
	limit := len([]rune(p.title)) + 10
	if len(sample) > limit {
		sample = sample[:limit]
	}
	return PartialRatio(titleTbc, string(sample))
}

// parseContent 解析条目正文并合并附件元数据，每个实例只执行一次。
func (p *PostFormatter) parseContent() {
	result := ConvertHTML(p.html, p.feedLink)
	p.tree = result.Tree
	p.media = result.Media
	p.parsedHTML = result.HTML
	p.plainLength = PlainTextLength(p.parsedHTML)
	p.parsed = true

	for _, enclosure := range p.enclosures {
		if enclosure.URL == "" {
			continue
		}
		if dup := p.media.URLExists(enclosure.URL, true); dup != nil {
			// 宽松匹配命中：附件地址通常更干净，提到最前
			if !dup.HasOriginalURL(enclosure.URL) {
				dup.Prepend(enclosure.URL)
			}
			continue
		}
		var medium *Medium
		switch {
		case !IsAbsoluteHTTPLink(enclosure.URL):
			if strings.Contains(p.html, `href="`+enclosure.URL+`"`) {
				continue
			}
			medium = NewFile(enclosure.URL)
		case enclosure.Type == "":
			medium = NewFile(enclosure.URL)
		case strings.Contains(enclosure.Type, "webp") || strings.Contains(enclosure.Type, "svg"):
			medium = NewImage(ConstructWeservURLConvertTo2560(p.cfg.WeservBase, enclosure.URL))
		case strings.HasPrefix(enclosure.Type, "image/gif"):
			medium = NewAnimation(enclosure.URL)
		case strings.HasPrefix(enclosure.Type, "audio"):
			medium = NewAudio(enclosure.URL)
		case strings.HasPrefix(enclosure.Type, "video"):
			medium = NewVideo(enclosure.Thumbnail, enclosure.URL)
		case strings.HasPrefix(enclosure.Type, "image"):
			medium = NewImage(enclosure.URL)
		default:
			medium = NewFile(enclosure.URL)
		}
		p.media.Add(medium)
		p.enclosureMediums = append(p.enclosureMediums, medium)
	}
}

// telegraphify 创建长文页面，结果（含失败）按实例记忆，最多发起一次外部调用。
func (p *PostFormatter) telegraphify(ctx context.Context) {
	if p.cfg.Telegraph == nil {
		p.telegraphState = -1
		return
	}
	html := p.html
	if len(p.enclosureMediums) > 0 {
		var multimedia []string
		for _, medium := range p.enclosureMediums {
			if tag := medium.MultimediaHTML(); tag != "" {
				multimedia = append(multimedia, tag)
			}
		}
		if len(multimedia) > 0 {
			html += "<p>" + strings.Join(multimedia, "<br>") + "</p>"
		}
	}
	title := p.title
	if title == "" {
		title = p.feedTitle
	}
	if title == "" {
		title = "Untitled"
	}
	link, err := p.cfg.Telegraph.CreatePage(ctx, title, html)
	if err != nil || link == "" {
		p.telegraphState = -1
		return
	}
	p.telegraphLink = link
	p.telegraphState = 1
}

// generateFormattedPost 组装最终消息：头部、正文（仅普通消息）、尾部。
func (p *PostFormatter) generateFormattedPost(subTitle string, tags []string, titleTyp postTitleType, via viaType, needAuthor bool, msgType messageType, style messageStyle) string {
	header, footer := p.postHeaderAndFooter(subTitle, tags, titleTyp, via, needAuthor, msgType, style)
	content := ""
	if msgType == normalMessage {
		content = p.parsedHTML
	}
	var b strings.Builder
	b.WriteString(header)
	if header != "" && content != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(content)
	if (header != "" || content != "") && footer != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(footer)
	return b.String()
}

// postHeaderAndFooter 按消息风格生成头尾。
// 默认风格：标题+标签在上，via+作者在下；flowerss 风格：订阅源标题+
// 标题+标签在上，长文链接或来源+作者在下。
func (p *PostFormatter) postHeaderAndFooter(subTitle string, tags []string, titleTyp postTitleType, via viaType, needAuthor bool, msgType messageType, style messageStyle) (string, string) {
	feedTitle := subTitle
	if feedTitle == "" {
		feedTitle = p.feedTitle
	}
	title := p.title
	if title == "" {
		title = "Untitled"
	}
	tagsHTML := ""
	if len(tags) > 0 {
		tagsHTML = PlainText("#" + strings.Join(tags, " #")).HTML(false)
	}
	authorHTML := ""
	if needAuthor && p.author != "" {
		authorHTML = PlainText(fmt.Sprintf("(author: %s)", p.author)).HTML(false)
	}

	if style == normalStyle {
		var titleNode *Node
		switch {
		case msgType == telegraphMessage:
			titleNode = Link(PlainText(title), p.telegraphLink)
		case titleTyp == postTitleWithLink:
			titleNode = Link(PlainText(title), p.link)
		case titleTyp == postTitleNoLink:
			titleNode = PlainText(title)
		}
		titleHTML := ""
		if titleNode != nil {
			titleHTML = Bold(Underline(titleNode)).HTML(false)
		}

		var viaNode *Node
		switch {
		case via == feedTitleViaWithLink:
			if p.link != "" {
				viaNode = Seq(PlainText("via "), LinkText(feedTitle, p.link))
			} else {
				viaNode = Seq(PlainText("via "), PlainText(feedTitle))
			}
		case via == feedTitleViaNoLink:
			viaNode = PlainText("via " + feedTitle)
		case via == bareLinkVia && p.link != "":
			viaNode = PlainText(p.link)
		case via == textLinkVia && p.link != "":
			viaNode = LinkText("source", p.link)
		}
		viaHTML := ""
		if viaNode != nil {
			viaHTML = viaNode.HTML(false)
		}

		header := joinNonEmpty("\n", titleHTML, tagsHTML)
		footer := joinNonEmpty(" ", viaHTML, authorHTML)
		return header, footer
	}

	feedTitleHTML := ""
	if (via == feedTitleViaWithLink || via == feedTitleViaNoLink) && feedTitle != "" {
		feedTitleHTML = Bold(PlainText(feedTitle)).HTML(false)
	}
	titleHTML := ""
	switch titleTyp {
	case postTitleWithLink:
		titleHTML = Bold(Underline(Link(PlainText(title), p.link))).HTML(false)
	case postTitleNoLink:
		titleHTML = Bold(Underline(PlainText(title))).HTML(false)
	}

	sourcingHTML := ""
	switch {
	case msgType == telegraphMessage:
		sourcingHTML = LinkText("Telegraph", p.telegraphLink).HTML(false)
		if via == bareLinkVia && p.link != "" {
			sourcingHTML += "\n" + p.link
		} else if via != noVia && p.link != "" {
			sourcingHTML += " | " + LinkText("source", p.link).HTML(false)
		}
	case via == noVia || via == feedTitleViaNoLink:
		sourcingHTML = ""
	case via == bareLinkVia && p.link != "":
		sourcingHTML = p.link
	default:
		if p.link != "" {
			sourcingHTML = LinkText("source", p.link).HTML(false)
		}
	}

	header := joinNonEmpty("\n", feedTitleHTML, titleHTML, tagsHTML)
	footer := joinNonEmpty("\n", sourcingHTML, authorHTML)
	return header, footer
}

func joinNonEmpty(sep string, parts ...string) string {
	var nonEmpty []string
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, sep)
}
