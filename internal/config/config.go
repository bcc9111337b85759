package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 tgfeed 的顶层配置结构。
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Database  DatabaseConfig  `yaml:"database"`
	Media     MediaConfig     `yaml:"media"`
	Log       LogConfig       `yaml:"log"`
}

// TelegramConfig Bot API 配置。
type TelegramConfig struct {
	// Token Bot API 令牌，支持 ${TGFEED_BOT_TOKEN} 形式从环境变量展开。
	Token string `yaml:"token"`
	// APIBase Bot API 地址，自建 api server 时修改。
	APIBase string `yaml:"api_base"`
	// Proxy SOCKS5 代理地址（host:port），为空则直连。
	Proxy string `yaml:"proxy"`
	// AdminIDs 管理员 chat id 列表，逗号或空白分隔。
	AdminIDs string `yaml:"admin_ids"`
	// Multiuser 是否允许任意用户订阅，false 时只响应管理员。
	Multiuser *bool `yaml:"multiuser"`
}

// TelegraphConfig 长文页面服务配置。
type TelegraphConfig struct {
	// Token Telegraph access token，为空则禁用长文页面。
	Token string `yaml:"token"`
	// AuthorName 页面署名，默认用订阅源标题。
	AuthorName string `yaml:"author_name"`
	AuthorURL  string `yaml:"author_url"`
}

// MonitorConfig 轮询配置。
type MonitorConfig struct {
	// DefaultInterval 默认轮询间隔（分钟）。
	DefaultInterval int `yaml:"default_interval"`
	// MinimalInterval 允许的最小间隔（分钟），小于该值的订阅按此值轮询。
	MinimalInterval int `yaml:"minimal_interval"`
	// Concurrency 单轮并发拉取的订阅源数量。
	Concurrency int `yaml:"concurrency"`
	// UserSubLimit 单个用户的订阅上限，-1 不限制。
	UserSubLimit int `yaml:"user_sub_limit"`
	// ChannelSubLimit 单个频道的订阅上限，-1 不限制。
	ChannelSubLimit int `yaml:"channel_sub_limit"`
}

// DatabaseConfig SQLite 配置。
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MediaConfig 图片代理配置。
type MediaConfig struct {
	// RelayBase 媒体中转服务地址，用于平台拉取失败的图片。
	RelayBase string `yaml:"relay_base"`
	// WeservBase weserv 图片代理地址，用于 webp/svg 转码。
	WeservBase string `yaml:"weserv_base"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${TGFEED_BOT_TOKEN}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("配置缺少 telegram.token")
	}
	return cfg, nil
}

// AdminIDList 解析管理员 id 列表。
func (c *TelegramConfig) AdminIDList() []int64 {
	var ids []int64
	for _, raw := range strings.FieldsFunc(c.AdminIDs, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		var id int64
		if _, err := fmt.Sscanf(raw, "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsMultiuser 未配置时默认开放订阅。
func (c *TelegramConfig) IsMultiuser() bool {
	if c.Multiuser == nil {
		return true
	}
	return *c.Multiuser
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = "https://api.telegram.org"
	}
	if cfg.Monitor.DefaultInterval <= 0 {
		cfg.Monitor.DefaultInterval = 10
	}
	if cfg.Monitor.MinimalInterval < 1 {
		cfg.Monitor.MinimalInterval = 5
	}
	if cfg.Monitor.Concurrency <= 0 {
		cfg.Monitor.Concurrency = 8
	}
	if cfg.Monitor.UserSubLimit == 0 {
		cfg.Monitor.UserSubLimit = -1
	}
	if cfg.Monitor.ChannelSubLimit == 0 {
		cfg.Monitor.ChannelSubLimit = -1
	}
	if cfg.Database.Path == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + "/.tgfeed/tgfeed.db"
		} else {
			cfg.Database.Path = "./tgfeed.db"
		}
	} else if strings.HasPrefix(cfg.Database.Path, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + cfg.Database.Path[1:]
		}
	}
	if cfg.Media.RelayBase == "" {
		cfg.Media.RelayBase = "https://rsstt-img-relay.rongrong.workers.dev/"
	}
	if cfg.Media.WeservBase == "" {
		cfg.Media.WeservBase = "https://wsrv.nl/"
	}
	cfg.Media.RelayBase = normalizeBaseURL(cfg.Media.RelayBase)
	cfg.Media.WeservBase = normalizeBaseURL(cfg.Media.WeservBase)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// 令牌两端可能带空白（环境变量展开后常见）
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Telegraph.Token = strings.TrimSpace(cfg.Telegraph.Token)
}

// normalizeBaseURL 补全协议并保证以 / 结尾。
func normalizeBaseURL(value string) string {
	if value == "" {
		return value
	}
	if !strings.HasPrefix(value, "http") {
		value = "https://" + value
	}
	if !strings.HasSuffix(value, "/") {
		value += "/"
	}
	return value
}
