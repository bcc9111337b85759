package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/tgfeed/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是统一的 SQLite 数据库连接。
// 订阅、用户和条目指纹共享同一个数据库文件，便于事务和备份。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.tgfeed/tgfeed.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".tgfeed", "tgfeed.db")
		} else {
			dbPath = "./tgfeed.db"
		}
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 用户（含频道/群组）及其默认格式化选项。
		// 选项列取值见 parsing 包的选项码，notify 默认开启，
		// display_entry_tags 默认关闭。
		`CREATE TABLE IF NOT EXISTS user (
			id INTEGER PRIMARY KEY,
			state INTEGER NOT NULL DEFAULT 1,
			lang TEXT NOT NULL DEFAULT '',
			admin INTEGER,
			sub_limit INTEGER,
			interval INTEGER,
			notify INTEGER NOT NULL DEFAULT 1,
			send_mode INTEGER NOT NULL DEFAULT 0,
			length_limit INTEGER NOT NULL DEFAULT 0,
			link_preview INTEGER NOT NULL DEFAULT 0,
			display_author INTEGER NOT NULL DEFAULT 0,
			display_via INTEGER NOT NULL DEFAULT 0,
			display_title INTEGER NOT NULL DEFAULT 0,
			display_entry_tags INTEGER NOT NULL DEFAULT -1,
			style INTEGER NOT NULL DEFAULT 0,
			display_media INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 订阅源。etag/last_modified 用于条件请求，
		// lock_until 防止多个轮询周期同时抓取同一源。
		`CREATE TABLE IF NOT EXISTS feed (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state INTEGER NOT NULL DEFAULT 1,
			link TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			interval INTEGER,
			etag TEXT,
			last_modified TEXT,
			error_count INTEGER NOT NULL DEFAULT 0,
			next_check_time DATETIME,
			lock_until DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 订阅关系。选项列 -100 表示继承用户级默认值。
		`CREATE TABLE IF NOT EXISTS sub (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state INTEGER NOT NULL DEFAULT 1,
			user_id INTEGER NOT NULL REFERENCES user(id) ON DELETE CASCADE,
			feed_id INTEGER NOT NULL REFERENCES feed(id) ON DELETE CASCADE,
			title TEXT,
			tags TEXT,
			interval INTEGER,
			notify INTEGER NOT NULL DEFAULT -100,
			send_mode INTEGER NOT NULL DEFAULT -100,
			length_limit INTEGER NOT NULL DEFAULT -100,
			link_preview INTEGER NOT NULL DEFAULT -100,
			display_author INTEGER NOT NULL DEFAULT -100,
			display_via INTEGER NOT NULL DEFAULT -100,
			display_title INTEGER NOT NULL DEFAULT -100,
			display_entry_tags INTEGER NOT NULL DEFAULT -100,
			style INTEGER NOT NULL DEFAULT -100,
			display_media INTEGER NOT NULL DEFAULT -100,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, feed_id)
		)`,
		// 已推送条目的指纹，用于去重。
		`CREATE TABLE IF NOT EXISTS feed_entry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feed_id INTEGER NOT NULL REFERENCES feed(id) ON DELETE CASCADE,
			entry_hash TEXT NOT NULL,
			published_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(feed_id, entry_hash)
		)`,
		// 运行时可调选项。
		`CREATE TABLE IF NOT EXISTS option (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_feed_next_check ON feed(state, next_check_time)`,
		`CREATE INDEX IF NOT EXISTS idx_sub_user ON sub(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sub_feed ON sub(feed_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_entry_feed ON feed_entry(feed_id, published_at)`,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
