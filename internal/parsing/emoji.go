package parsing

import "strings"

// emojiMap 微博风格的表情短代码映射。
// 源站常在正文和 alt 文本里使用 [短代码]，渲染时替换为对应 emoji。
var emojiMap = map[string]string{
	"[微笑]":   "🙂",
	"[嘻嘻]":   "😁",
	"[哈哈]":   "😄",
	"[可爱]":   "😊",
	"[可怜]":   "🥺",
	"[挖鼻]":   "🙃",
	"[吃惊]":   "😮",
	"[害羞]":   "😳",
	"[挤眼]":   "😉",
	"[闭嘴]":   "🤐",
	"[鄙视]":   "😒",
	"[爱你]":   "😍",
	"[泪]":    "😢",
	"[偷笑]":   "🤭",
	"[亲亲]":   "😘",
	"[生病]":   "😷",
	"[太开心]":  "😆",
	"[白眼]":   "🙄",
	"[右哼哼]":  "😤",
	"[左哼哼]":  "😤",
	"[嘘]":    "🤫",
	"[衰]":    "😵",
	"[委屈]":   "😟",
	"[吐]":    "🤮",
	"[哈欠]":   "🥱",
	"[抱抱]":   "🤗",
	"[怒]":    "😠",
	"[疑问]":   "❓",
	"[馋嘴]":   "😋",
	"[拜拜]":   "👋",
	"[思考]":   "🤔",
	"[汗]":    "😓",
	"[困]":    "😪",
	"[睡]":    "😴",
	"[钱]":    "🤑",
	"[失望]":   "😞",
	"[酷]":    "😎",
	"[色]":    "😍",
	"[怒骂]":   "🤬",
	"[鼓掌]":   "👏",
	"[悲伤]":   "😭",
	"[晕]":    "😵‍💫",
	"[doge]": "🐶",
	"[泪流满面]": "😭",
	"[抓狂]":   "😫",
	"[心]":    "❤️",
	"[伤心]":   "💔",
	"[猪头]":   "🐷",
	"[熊猫]":   "🐼",
	"[兔子]":   "🐰",
	"[ok]":   "👌",
	"[耶]":    "✌️",
	"[good]": "👍",
	"[NO]":   "🙅",
	"[赞]":    "👍",
	"[来]":    "👈",
	"[弱]":    "👎",
	"[草泥马]":  "🦙",
	"[奥特曼]":  "🦸",
	"[礼物]":   "🎁",
	"[钟]":    "🕐",
	"[话筒]":   "🎤",
	"[蜡烛]":   "🕯️",
	"[蛋糕]":   "🎂",
	"[飞机]":   "✈️",
	"[太阳]":   "☀️",
	"[月亮]":   "🌙",
	"[浮云]":   "☁️",
	"[下雨]":   "🌧️",
	"[沙尘暴]":  "🌪️",
	"[威武]":   "💪",
	"[给力]":   "💪",
	"[围观]":   "👀",
	"[音乐]":   "🎵",
	"[肥皂]":   "🧼",
	"[绿丝带]":  "🎗️",
	"[围脖]":   "🧣",
	"[浪]":    "🌊",
	"[最右]":   "👉",
}

var emojiReplacer = buildEmojiReplacer()

func buildEmojiReplacer() *strings.Replacer {
	pairs := make([]string, 0, len(emojiMap)*2)
	for code, emoji := range emojiMap {
		pairs = append(pairs, code, emoji)
	}
	return strings.NewReplacer(pairs...)
}

// Emojify 把文本中的 [短代码] 替换为 emoji，未知短代码原样保留。
func Emojify(s string) string {
	if s == "" || !strings.Contains(s, "[") {
		return s
	}
	return emojiReplacer.Replace(s)
}
