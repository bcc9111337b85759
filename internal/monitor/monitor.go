// Package monitor 实现订阅源轮询：到期检查、抓取、去重、格式化并推送。
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iabetor/tgfeed/internal/config"
	"github.com/iabetor/tgfeed/internal/database"
	"github.com/iabetor/tgfeed/internal/logger"
	"github.com/iabetor/tgfeed/internal/parsing"
	"github.com/iabetor/tgfeed/internal/rss"
	"github.com/iabetor/tgfeed/internal/telegram"
)

const (
	maxFeedsPerRun   = 20
	feedLockDuration = 55 * time.Second
	entryKeep        = 300
	tickInterval     = time.Minute
)

// Monitor 轮询器。
type Monitor struct {
	db        *database.DB
	fetcher   *rss.Fetcher
	sender    *telegram.Sender
	telegraph *telegram.Telegraph
	cfg       *config.Config
}

// New 创建轮询器。telegraph 可为 nil（禁用长文页面）。
func New(db *database.DB, fetcher *rss.Fetcher, sender *telegram.Sender, telegraph *telegram.Telegraph, cfg *config.Config) *Monitor {
	return &Monitor{
		db:        db,
		fetcher:   fetcher,
		sender:    sender,
		telegraph: telegraph,
		cfg:       cfg,
	}
}

// Run 按固定节拍轮询，直到 ctx 取消。
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	logger.Infof("[monitor] 轮询启动，节拍 %v", tickInterval)
	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[monitor] 轮询停止")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一轮：选出到期订阅源并并发处理。
func (m *Monitor) RunOnce(ctx context.Context) {
	runID := uuid.NewString()[:8]
	feeds, err := m.db.DueFeeds(ctx, maxFeedsPerRun)
	if err != nil {
		logger.Errorf("[monitor] run=%s 查询到期订阅源失败: %v", runID, err)
		return
	}
	if len(feeds) == 0 {
		return
	}
	logger.Infof("[monitor] run=%s 本轮处理 %d 个订阅源", runID, len(feeds))

	sem := make(chan struct{}, m.cfg.Monitor.Concurrency)
	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		sem <- struct{}{}
		go func(feed *database.Feed) {
			defer wg.Done()
			defer func() { <-sem }()
			m.processFeed(ctx, runID, feed)
		}(feed)
	}
	wg.Wait()
}

// feedInterval 订阅源生效的轮询间隔（分钟）。
func (m *Monitor) feedInterval(feed *database.Feed) int {
	interval := m.cfg.Monitor.DefaultInterval
	if feed.Interval.Valid && feed.Interval.Int64 > 0 {
		interval = int(feed.Interval.Int64)
	}
	if interval < m.cfg.Monitor.MinimalInterval {
		interval = m.cfg.Monitor.MinimalInterval
	}
	return interval
}

// scheduleNext 推算下次检查时间，failed 时累加失败计数。
func (m *Monitor) scheduleNext(ctx context.Context, feed *database.Feed, failed bool) {
	nextCheck := time.Now().UTC().
		Add(time.Duration(m.feedInterval(feed)) * time.Minute).
		Format(time.RFC3339)
	patch := map[string]any{"next_check_time": nextCheck, "error_count": 0}
	if failed {
		patch["error_count"] = feed.ErrorCount + 1
	}
	if err := m.db.UpdateFeed(ctx, feed.ID, patch); err != nil {
		logger.Errorf("[monitor] 更新订阅源 %d 状态失败: %v", feed.ID, err)
	}
}

func (m *Monitor) processFeed(ctx context.Context, runID string, feed *database.Feed) {
	if err := m.db.LockFeed(ctx, feed.ID, feedLockDuration); err != nil {
		logger.Warnf("[monitor] run=%s 锁定订阅源 %d 失败: %v", runID, feed.ID, err)
		return
	}

	result, err := m.fetcher.Fetch(ctx, feed.Link, feed.ETag.String, feed.LastModified.String)
	if err != nil {
		logger.Warnf("[monitor] run=%s 抓取 %s 失败: %v", runID, feed.Link, err)
		m.scheduleNext(ctx, feed, true)
		return
	}
	if result.NotModified {
		logger.Debugf("[monitor] run=%s %s 未变化", runID, feed.Link)
		m.scheduleNext(ctx, feed, false)
		return
	}

	current := result.Feed
	hashes := make([]string, len(current.Entries))
	for i, entry := range current.Entries {
		hashes[i] = parsing.GenerateEntryHash(&entry.Entry)
	}
	existing, err := m.db.FilterExistingHashes(ctx, feed.ID, hashes)
	if err != nil {
		logger.Errorf("[monitor] run=%s 查询条目指纹失败: %v", runID, err)
		m.scheduleNext(ctx, feed, true)
		return
	}
	var newEntries []*rss.Entry
	for i, entry := range current.Entries {
		if !existing[hashes[i]] {
			newEntries = append(newEntries, entry)
		}
	}

	title := current.Title
	if title == "" {
		title = feed.Title
	}
	nextCheck := time.Now().UTC().
		Add(time.Duration(m.feedInterval(feed)) * time.Minute).
		Format(time.RFC3339)
	patch := map[string]any{
		"title":           title,
		"next_check_time": nextCheck,
		"error_count":     0,
		"etag":            nullable(result.ETag),
		"last_modified":   nullable(result.LastModified),
	}
	if err := m.db.UpdateFeed(ctx, feed.ID, patch); err != nil {
		logger.Errorf("[monitor] run=%s 更新订阅源 %d 失败: %v", runID, feed.ID, err)
	}

	if len(newEntries) == 0 {
		return
	}
	logger.Infof("[monitor] run=%s %s 有 %d 条新条目", runID, feed.Link, len(newEntries))

	subs, err := m.db.ListSubsByFeed(ctx, feed.ID)
	if err != nil {
		logger.Errorf("[monitor] run=%s 查询推送目标失败: %v", runID, err)
		return
	}

	formatterCfg := parsing.FormatterConfig{WeservBase: m.cfg.Media.WeservBase}
	if m.telegraph != nil {
		formatterCfg.Telegraph = m.telegraph
	}

	// 抓取结果新条目在前，按时间顺序推送需要倒序
	for i := len(newEntries) - 1; i >= 0; i-- {
		entry := newEntries[i]
		formatter := parsing.NewEntryFormatter(&entry.Entry, title, feed.Link, formatterCfg)
		for _, sub := range subs {
			formatting := ResolveFormatting(&sub.Sub, &sub.User, m.cfg.Monitor.DefaultInterval)
			post := formatter.Format(ctx, formatting)
			if post == nil {
				continue
			}
			if err := m.sender.SendPost(ctx, sub.UserID, post, formatting.Notify != 0); err != nil {
				logger.Errorf("[monitor] run=%s 推送到 %d 失败: %v", runID, sub.UserID, err)
			}
		}
	}

	publishedAt := ""
	if !newEntries[0].Published.IsZero() {
		publishedAt = newEntries[0].Published.UTC().Format(time.RFC3339)
	}
	if err := m.db.UpsertEntryHashes(ctx, feed.ID, hashes, publishedAt); err != nil {
		logger.Errorf("[monitor] run=%s 登记条目指纹失败: %v", runID, err)
	}
	if err := m.db.PruneEntryHashes(ctx, feed.ID, entryKeep); err != nil {
		logger.Warnf("[monitor] run=%s 清理条目指纹失败: %v", runID, err)
	}
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
