// Package rss 提供订阅源抓取与归一化。
package rss

import (
	"time"

	"github.com/iabetor/tgfeed/internal/parsing"
	"github.com/mmcdole/gofeed"
)

// Entry 一条归一化后的订阅条目，附带发布时间供去重表排序。
type Entry struct {
	parsing.Entry
	Published time.Time
}

// Feed 归一化后的订阅源。
type Feed struct {
	Title   string
	Link    string
	Entries []*Entry
}

// FetchResult 单次抓取的结果。304 时 NotModified 为真且 Feed 为 nil。
type FetchResult struct {
	URL          string
	Status       int
	ETag         string
	LastModified string
	NotModified  bool
	Feed         *Feed
}

// convertFeed 把 gofeed 的解析结果转换为内部结构。
// gofeed 已经抹平了 RSS/RDF/Atom/JSON Feed 的差异，这里只做字段取舍。
func convertFeed(parsed *gofeed.Feed) *Feed {
	feed := &Feed{
		Title: parsed.Title,
		Link:  parsed.Link,
	}
	for _, item := range parsed.Items {
		feed.Entries = append(feed.Entries, convertItem(item))
	}
	return feed
}

func convertItem(item *gofeed.Item) *Entry {
	entry := &Entry{
		Entry: parsing.Entry{
			GUID:    item.GUID,
			Link:    item.Link,
			Title:   item.Title,
			Summary: item.Description,
			Content: item.Content,
		},
	}
	if entry.Content == "" {
		entry.Content = item.Description
	}
	if item.Author != nil {
		entry.Author = item.Author.Name
	}
	if entry.Author == "" && item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		entry.Author = item.DublinCoreExt.Creator[0]
	}
	for _, tag := range item.Categories {
		if tag != "" {
			entry.Tags = append(entry.Tags, tag)
		}
	}
	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		entry.Enclosures = append(entry.Enclosures, parsing.Enclosure{
			URL:  enclosure.URL,
			Type: enclosure.Type,
		})
	}
	// 播客源常把封面放在 iTunes 扩展字段里
	if item.ITunesExt != nil && item.ITunesExt.Image != "" && len(entry.Enclosures) > 0 {
		entry.Enclosures[0].Thumbnail = item.ITunesExt.Image
	}
	if item.PublishedParsed != nil {
		entry.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		entry.Published = *item.UpdatedParsed
	}
	return entry
}
