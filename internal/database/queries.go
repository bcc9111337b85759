package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// User 用户（或频道/群组）及其默认格式化选项。
type User struct {
	ID               int64
	State            int
	Lang             string
	Admin            sql.NullInt64
	SubLimit         sql.NullInt64
	Interval         sql.NullInt64
	Notify           int
	SendMode         int
	LengthLimit      int
	LinkPreview      int
	DisplayAuthor    int
	DisplayVia       int
	DisplayTitle     int
	DisplayEntryTags int
	Style            int
	DisplayMedia     int
}

// Feed 订阅源。
type Feed struct {
	ID            int64
	State         int
	Link          string
	Title         string
	Interval      sql.NullInt64
	ETag          sql.NullString
	LastModified  sql.NullString
	ErrorCount    int
	NextCheckTime sql.NullString
	LockUntil     sql.NullString
}

// Sub 订阅关系，选项列 -100 表示继承用户级默认值。
type Sub struct {
	ID               int64
	State            int
	UserID           int64
	FeedID           int64
	Title            sql.NullString
	Tags             sql.NullString
	Interval         sql.NullInt64
	Notify           int
	SendMode         int
	LengthLimit      int
	LinkPreview      int
	DisplayAuthor    int
	DisplayVia       int
	DisplayTitle     int
	DisplayEntryTags int
	Style            int
	DisplayMedia     int
}

// SubWithFeed 用户订阅列表项。
type SubWithFeed struct {
	Sub
	FeedTitle string
	FeedLink  string
}

// SubWithContext 按订阅源展开的推送目标，附带用户默认值与源信息。
type SubWithContext struct {
	Sub
	User User
	Feed Feed
}

const userColumns = "id, state, lang, admin, sub_limit, interval, notify, send_mode, length_limit, link_preview, display_author, display_via, display_title, display_entry_tags, style, display_media"

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.State, &u.Lang, &u.Admin, &u.SubLimit, &u.Interval,
		&u.Notify, &u.SendMode, &u.LengthLimit, &u.LinkPreview, &u.DisplayAuthor,
		&u.DisplayVia, &u.DisplayTitle, &u.DisplayEntryTags, &u.Style, &u.DisplayMedia)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser 查询用户，不存在时返回 nil。
func (db *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	row := db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM user WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

// GetOrCreateUser 查询用户，不存在则按默认值创建。
func (db *DB) GetOrCreateUser(ctx context.Context, id int64) (*User, error) {
	u, err := db.GetUser(ctx, id)
	if err != nil || u != nil {
		return u, err
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO user (id) VALUES (?)", id); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	u, err = db.GetUser(ctx, id)
	if err == nil && u == nil {
		err = errors.New("用户创建后查询为空")
	}
	return u, err
}

// 允许通过 patch 修改的列，防止拼接出意外的 SQL。
var userPatchColumns = map[string]bool{
	"state": true, "lang": true, "admin": true, "sub_limit": true, "interval": true,
	"notify": true, "send_mode": true, "length_limit": true, "link_preview": true,
	"display_author": true, "display_via": true, "display_title": true,
	"display_entry_tags": true, "style": true, "display_media": true,
}

var feedPatchColumns = map[string]bool{
	"state": true, "title": true, "interval": true, "etag": true, "last_modified": true,
	"error_count": true, "next_check_time": true, "lock_until": true,
}

var subPatchColumns = map[string]bool{
	"state": true, "title": true, "tags": true, "interval": true,
	"notify": true, "send_mode": true, "length_limit": true, "link_preview": true,
	"display_author": true, "display_via": true, "display_title": true,
	"display_entry_tags": true, "style": true, "display_media": true,
}

func (db *DB) patchRow(ctx context.Context, table string, allowed map[string]bool, patch map[string]any, where string, whereArgs ...any) error {
	if len(patch) == 0 {
		return nil
	}
	columns := make([]string, 0, len(patch))
	for column := range patch {
		if !allowed[column] {
			return fmt.Errorf("不允许修改 %s.%s", table, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	assignments := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+len(whereArgs))
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		args = append(args, patch[column])
	}
	assignments = append(assignments, "updated_at = datetime('now')")
	args = append(args, whereArgs...)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(assignments, ", "), where)
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("更新 %s 失败: %w", table, err)
	}
	return nil
}

// UpdateUser 按 patch 更新用户默认选项。
func (db *DB) UpdateUser(ctx context.Context, id int64, patch map[string]any) error {
	return db.patchRow(ctx, "user", userPatchColumns, patch, "id = ?", id)
}

const feedColumns = "id, state, link, title, interval, etag, last_modified, error_count, next_check_time, lock_until"

func scanFeed(row *sql.Row) (*Feed, error) {
	f := &Feed{}
	err := row.Scan(&f.ID, &f.State, &f.Link, &f.Title, &f.Interval, &f.ETag,
		&f.LastModified, &f.ErrorCount, &f.NextCheckTime, &f.LockUntil)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetFeedByLink 按链接查询订阅源，不存在时返回 nil。
func (db *DB) GetFeedByLink(ctx context.Context, link string) (*Feed, error) {
	row := db.QueryRowContext(ctx, "SELECT "+feedColumns+" FROM feed WHERE link = ?", link)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询订阅源失败: %w", err)
	}
	return f, nil
}

// GetFeedByID 按 id 查询订阅源，不存在时返回 nil。
func (db *DB) GetFeedByID(ctx context.Context, id int64) (*Feed, error) {
	row := db.QueryRowContext(ctx, "SELECT "+feedColumns+" FROM feed WHERE id = ?", id)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询订阅源失败: %w", err)
	}
	return f, nil
}

// CreateFeed 创建订阅源。
func (db *DB) CreateFeed(ctx context.Context, link, title string) (*Feed, error) {
	if _, err := db.ExecContext(ctx, "INSERT INTO feed (link, title) VALUES (?, ?)", link, title); err != nil {
		return nil, fmt.Errorf("创建订阅源失败: %w", err)
	}
	f, err := db.GetFeedByLink(ctx, link)
	if err == nil && f == nil {
		err = errors.New("订阅源创建后查询为空")
	}
	return f, err
}

// UpdateFeed 按 patch 更新订阅源。
func (db *DB) UpdateFeed(ctx context.Context, id int64, patch map[string]any) error {
	return db.patchRow(ctx, "feed", feedPatchColumns, patch, "id = ?", id)
}

// DueFeeds 返回到期且未被锁定的订阅源，按到期时间排序。
func (db *DB) DueFeeds(ctx context.Context, limit int) ([]*Feed, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	rows, err := db.QueryContext(ctx,
		"SELECT "+feedColumns+" FROM feed WHERE state = 1 AND (next_check_time IS NULL OR next_check_time <= ?) AND (lock_until IS NULL OR lock_until <= ?) ORDER BY next_check_time ASC LIMIT ?",
		now, now, limit)
	if err != nil {
		return nil, fmt.Errorf("查询到期订阅源失败: %w", err)
	}
	defer rows.Close()
	var feeds []*Feed
	for rows.Next() {
		f := &Feed{}
		if err := rows.Scan(&f.ID, &f.State, &f.Link, &f.Title, &f.Interval, &f.ETag,
			&f.LastModified, &f.ErrorCount, &f.NextCheckTime, &f.LockUntil); err != nil {
			return nil, fmt.Errorf("扫描订阅源失败: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// LockFeed 锁定订阅源，避免并发轮询重复抓取。
func (db *DB) LockFeed(ctx context.Context, feedID int64, d time.Duration) error {
	lockUntil := time.Now().UTC().Add(d).Format(time.RFC3339)
	return db.UpdateFeed(ctx, feedID, map[string]any{"lock_until": lockUntil})
}

// UpdateFeedInterval 把订阅源间隔设为其活跃订阅中的最小值并推算下次检查时间。
func (db *DB) UpdateFeedInterval(ctx context.Context, feedID int64, defaultInterval int) error {
	row := db.QueryRowContext(ctx,
		"SELECT MIN(CASE WHEN interval IS NULL THEN ? ELSE interval END) FROM sub WHERE feed_id = ? AND state = 1",
		defaultInterval, feedID)
	var minInterval sql.NullInt64
	if err := row.Scan(&minInterval); err != nil {
		return fmt.Errorf("计算订阅源间隔失败: %w", err)
	}
	interval := int64(defaultInterval)
	if minInterval.Valid {
		interval = minInterval.Int64
	}
	nextCheck := time.Now().UTC().Add(time.Duration(interval) * time.Minute).Format(time.RFC3339)
	return db.UpdateFeed(ctx, feedID, map[string]any{"interval": interval, "next_check_time": nextCheck})
}

const subColumns = "id, state, user_id, feed_id, title, tags, interval, notify, send_mode, length_limit, link_preview, display_author, display_via, display_title, display_entry_tags, style, display_media"

func scanSubFields(scan func(dest ...any) error, s *Sub, extra ...any) error {
	dest := []any{&s.ID, &s.State, &s.UserID, &s.FeedID, &s.Title, &s.Tags, &s.Interval,
		&s.Notify, &s.SendMode, &s.LengthLimit, &s.LinkPreview, &s.DisplayAuthor,
		&s.DisplayVia, &s.DisplayTitle, &s.DisplayEntryTags, &s.Style, &s.DisplayMedia}
	dest = append(dest, extra...)
	return scan(dest...)
}

// GetSub 查询用户对某订阅源的订阅，不存在时返回 nil。
func (db *DB) GetSub(ctx context.Context, userID, feedID int64) (*Sub, error) {
	row := db.QueryRowContext(ctx, "SELECT "+subColumns+" FROM sub WHERE user_id = ? AND feed_id = ?", userID, feedID)
	s := &Sub{}
	err := scanSubFields(row.Scan, s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询订阅失败: %w", err)
	}
	return s, nil
}

// CreateSub 创建订阅，title 可为空。
func (db *DB) CreateSub(ctx context.Context, userID, feedID int64, title string) (*Sub, error) {
	var titleValue any
	if title != "" {
		titleValue = title
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO sub (user_id, feed_id, title) VALUES (?, ?, ?)", userID, feedID, titleValue); err != nil {
		return nil, fmt.Errorf("创建订阅失败: %w", err)
	}
	s, err := db.GetSub(ctx, userID, feedID)
	if err == nil && s == nil {
		err = errors.New("订阅创建后查询为空")
	}
	return s, err
}

// UpdateSub 按 patch 更新订阅选项。
func (db *DB) UpdateSub(ctx context.Context, subID int64, patch map[string]any) error {
	return db.patchRow(ctx, "sub", subPatchColumns, patch, "id = ?", subID)
}

// DeleteSub 删除订阅。
func (db *DB) DeleteSub(ctx context.Context, subID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM sub WHERE id = ?", subID); err != nil {
		return fmt.Errorf("删除订阅失败: %w", err)
	}
	return nil
}

// DeleteSubByUserFeed 按用户和订阅源删除订阅。
func (db *DB) DeleteSubByUserFeed(ctx context.Context, userID, feedID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM sub WHERE user_id = ? AND feed_id = ?", userID, feedID); err != nil {
		return fmt.Errorf("删除订阅失败: %w", err)
	}
	return nil
}

// DeleteAllSubs 删除用户的全部订阅。
func (db *DB) DeleteAllSubs(ctx context.Context, userID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM sub WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("删除订阅失败: %w", err)
	}
	return nil
}

// CountSubs 用户的订阅数量。
func (db *DB) CountSubs(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sub WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("统计订阅失败: %w", err)
	}
	return count, nil
}

// ListSubsByUser 分页列出用户的订阅，附带订阅源标题和链接。
func (db *DB) ListSubsByUser(ctx context.Context, userID int64, page, pageSize int) (int, []*SubWithFeed, error) {
	total, err := db.CountSubs(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if total == 0 {
		return 0, nil, nil
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		"SELECT sub.id, sub.state, sub.user_id, sub.feed_id, sub.title, sub.tags, sub.interval, sub.notify, sub.send_mode, sub.length_limit, sub.link_preview, sub.display_author, sub.display_via, sub.display_title, sub.display_entry_tags, sub.style, sub.display_media, feed.title, feed.link FROM sub JOIN feed ON sub.feed_id = feed.id WHERE sub.user_id = ? ORDER BY sub.id DESC LIMIT ? OFFSET ?",
		userID, pageSize, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("查询订阅列表失败: %w", err)
	}
	defer rows.Close()
	var subs []*SubWithFeed
	for rows.Next() {
		item := &SubWithFeed{}
		if err := scanSubFields(rows.Scan, &item.Sub, &item.FeedTitle, &item.FeedLink); err != nil {
			return 0, nil, fmt.Errorf("扫描订阅失败: %w", err)
		}
		subs = append(subs, item)
	}
	return total, subs, rows.Err()
}

// ListSubsByFeed 列出订阅源的全部活跃推送目标，附带用户默认值与源信息。
func (db *DB) ListSubsByFeed(ctx context.Context, feedID int64) ([]*SubWithContext, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT sub.id, sub.state, sub.user_id, sub.feed_id, sub.title, sub.tags, sub.interval, sub.notify, sub.send_mode, sub.length_limit, sub.link_preview, sub.display_author, sub.display_via, sub.display_title, sub.display_entry_tags, sub.style, sub.display_media, "+
			"user.id, user.state, user.lang, user.admin, user.sub_limit, user.interval, user.notify, user.send_mode, user.length_limit, user.link_preview, user.display_author, user.display_via, user.display_title, user.display_entry_tags, user.style, user.display_media, "+
			"feed.id, feed.state, feed.link, feed.title, feed.interval, feed.etag, feed.last_modified, feed.error_count, feed.next_check_time, feed.lock_until "+
			"FROM sub JOIN user ON sub.user_id = user.id JOIN feed ON sub.feed_id = feed.id WHERE sub.feed_id = ? AND sub.state = 1",
		feedID)
	if err != nil {
		return nil, fmt.Errorf("查询推送目标失败: %w", err)
	}
	defer rows.Close()
	var result []*SubWithContext
	for rows.Next() {
		item := &SubWithContext{}
		u := &item.User
		f := &item.Feed
		err := scanSubFields(rows.Scan, &item.Sub,
			&u.ID, &u.State, &u.Lang, &u.Admin, &u.SubLimit, &u.Interval,
			&u.Notify, &u.SendMode, &u.LengthLimit, &u.LinkPreview, &u.DisplayAuthor,
			&u.DisplayVia, &u.DisplayTitle, &u.DisplayEntryTags, &u.Style, &u.DisplayMedia,
			&f.ID, &f.State, &f.Link, &f.Title, &f.Interval, &f.ETag,
			&f.LastModified, &f.ErrorCount, &f.NextCheckTime, &f.LockUntil)
		if err != nil {
			return nil, fmt.Errorf("扫描推送目标失败: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// UpsertEntryHashes 批量登记条目指纹，重复指纹忽略。
func (db *DB) UpsertEntryHashes(ctx context.Context, feedID int64, hashes []string, publishedAt string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO feed_entry (feed_id, entry_hash, published_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()
	var published any
	if publishedAt != "" {
		published = publishedAt
	}
	for _, hash := range hashes {
		if _, err := stmt.ExecContext(ctx, feedID, hash, published); err != nil {
			return fmt.Errorf("登记条目指纹失败: %w", err)
		}
	}
	return tx.Commit()
}

// FilterExistingHashes 返回已登记过的指纹集合。
func (db *DB) FilterExistingHashes(ctx context.Context, feedID int64, hashes []string) (map[string]bool, error) {
	existing := map[string]bool{}
	if len(hashes) == 0 {
		return existing, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(hashes)), ", ")
	args := make([]any, 0, len(hashes)+1)
	args = append(args, feedID)
	for _, hash := range hashes {
		args = append(args, hash)
	}
	rows, err := db.QueryContext(ctx,
		"SELECT entry_hash FROM feed_entry WHERE feed_id = ? AND entry_hash IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("查询条目指纹失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("扫描条目指纹失败: %w", err)
		}
		existing[hash] = true
	}
	return existing, rows.Err()
}

// PruneEntryHashes 只保留最近 keep 条指纹，控制表体积。
func (db *DB) PruneEntryHashes(ctx context.Context, feedID int64, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		"DELETE FROM feed_entry WHERE feed_id = ? AND entry_hash NOT IN (SELECT entry_hash FROM feed_entry WHERE feed_id = ? ORDER BY published_at DESC LIMIT ?)",
		feedID, feedID, keep)
	if err != nil {
		return fmt.Errorf("清理条目指纹失败: %w", err)
	}
	return nil
}

// GetOption 读取运行时选项，未设置时返回空串。
func (db *DB) GetOption(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := db.QueryRowContext(ctx, "SELECT value FROM option WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取选项失败: %w", err)
	}
	return value.String, nil
}

// SetOption 写入运行时选项。
func (db *DB) SetOption(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO option (key, value, updated_at) VALUES (?, ?, datetime('now')) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')",
		key, value)
	if err != nil {
		return fmt.Errorf("写入选项失败: %w", err)
	}
	return nil
}
