package monitor

import (
	"github.com/iabetor/tgfeed/internal/database"
	"github.com/iabetor/tgfeed/internal/parsing"
)

// resolveOption 订阅级选项为 -100 时继承用户级默认值。
func resolveOption(subValue, userValue int) int {
	if subValue == parsing.OptionInherit {
		return userValue
	}
	return subValue
}

// ResolveFormatting 合并订阅级与用户级选项，得到最终格式化选项。
func ResolveFormatting(sub *database.Sub, user *database.User, defaultInterval int) parsing.Formatting {
	interval := defaultInterval
	if sub.Interval.Valid {
		interval = int(sub.Interval.Int64)
	} else if user.Interval.Valid {
		interval = int(user.Interval.Int64)
	}
	return parsing.Formatting{
		Notify:           resolveOption(sub.Notify, user.Notify),
		SendMode:         resolveOption(sub.SendMode, user.SendMode),
		LengthLimit:      resolveOption(sub.LengthLimit, user.LengthLimit),
		LinkPreview:      resolveOption(sub.LinkPreview, user.LinkPreview),
		DisplayAuthor:    resolveOption(sub.DisplayAuthor, user.DisplayAuthor),
		DisplayVia:       resolveOption(sub.DisplayVia, user.DisplayVia),
		DisplayTitle:     resolveOption(sub.DisplayTitle, user.DisplayTitle),
		DisplayEntryTags: resolveOption(sub.DisplayEntryTags, user.DisplayEntryTags),
		Style:            resolveOption(sub.Style, user.Style),
		DisplayMedia:     resolveOption(sub.DisplayMedia, user.DisplayMedia),
		Interval:         interval,
		Tags:             parsing.ParseTagList(sub.Tags.String),
		TitleOverride:    sub.Title.String,
	}
}
