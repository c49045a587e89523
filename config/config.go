package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/tubesort/tubesort/pkg/logger"
)

type Config struct {
	Debug    bool                 `json:"debug" yaml:"debug" toml:"debug"`
	Server   *ServerConfig        `json:"server" yaml:"server" toml:"server"`
	Database *DatabaseConfig      `json:"database" yaml:"database" toml:"database"`
	Browser  *BrowserConfig       `json:"browser" yaml:"browser" toml:"browser"`
	Auth     *AuthConfig          `json:"auth" yaml:"auth" toml:"auth"`
	Sort     *SortConfig          `json:"sort" yaml:"sort" toml:"sort"`
	Log      *logger.LoggerConfig `json:"log,omitempty" yaml:"log,omitempty" toml:"log,omitempty"`
}

type ServerConfig struct {
	Port string `json:"port" toml:"port"`
	Host string `json:"host" toml:"host"`
}

type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

type BrowserConfig struct {
	BinPath     string `json:"bin_path" toml:"bin_path"`
	UserDataDir string `json:"user_data_dir" toml:"user_data_dir"`
	ControlURL  string `json:"control_url,omitempty" toml:"control_url,omitempty"` // 远程 Chrome DevTools URL，非空时不启动本地浏览器
	Headless    bool   `json:"headless" toml:"headless"`
}

type AuthConfig struct {
	Enabled         bool   `json:"enabled" toml:"enabled"`
	AppKey          string `json:"app_key" toml:"app_key"` // JWT 签名密钥
	DefaultUsername string `json:"default_username" toml:"default_username"`
	DefaultPassword string `json:"default_password" toml:"default_password"`
}

// SortConfig 排序任务的默认参数
type SortConfig struct {
	Order        string `json:"order" toml:"order"`                   // asc 或 desc
	MaxDuration  int    `json:"max_duration" toml:"max_duration"`     // 秒，0 表示不过滤
	ScrollPause  int    `json:"scroll_pause" toml:"scroll_pause"`     // 增量加载滚动间隔（毫秒）
	MoveDelay    int    `json:"move_delay" toml:"move_delay"`         // 两次移动之间的等待（毫秒）
	MoveAttempts int    `json:"move_attempts" toml:"move_attempts"`   // 单个视频移动的最大重试次数
	NavTimeoutMs int    `json:"nav_timeout_ms" toml:"nav_timeout_ms"` // 页面导航超时（毫秒）
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		browserCfg := &BrowserConfig{}
		// 根据系统设置默认的 binpath
		chromeBinPath := ""
		if envPath := os.Getenv("CHROME_BIN_PATH"); envPath != "" {
			chromeBinPath = envPath
		} else {
			// 常见的 Chrome/Chromium 安装路径
			commonPaths := []string{
				"/usr/bin/google-chrome",
				"/usr/bin/chromium-browser",
				"/usr/bin/chromium",
				"/usr/bin/google-chrome-stable",
				"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
				"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
				"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
			}
			for _, p := range commonPaths {
				if _, err := os.Stat(p); err == nil {
					chromeBinPath = p
					break
				}
			}
		}
		browserCfg.BinPath = chromeBinPath
		browserCfg.UserDataDir = "./chrome_user_data"
		// 如果本地不存在 data 和 log 目录，则创建
		_, err := os.Stat("./data")
		if os.IsNotExist(err) {
			os.Mkdir("./data", 0o755)
		}
		_, err = os.Stat("./log")
		if os.IsNotExist(err) {
			os.Mkdir("./log", 0o755)
		}
		// 返回默认配置
		defConfig := &Config{
			Server: &ServerConfig{
				Port: "8080",
				Host: "0.0.0.0",
			},
			Database: &DatabaseConfig{
				Path: "./data/tubesort.db",
			},
			Browser: browserCfg,
			Auth: &AuthConfig{
				Enabled: false,
			},
			Sort: defaultSortConfig(),
			Log: &logger.LoggerConfig{
				Level: "info",
				File:  "./log/tubesort.log",
			},
		}
		// 如果错误是文件不存在，则将defConfig写到本地的path位置
		if os.IsNotExist(err) {
			cfgData, err := toml.Marshal(defConfig)
			if err == nil {
				os.WriteFile(path, cfgData, 0o644)
			}
		}
		return defConfig, nil
	}

	var cfg Config
	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	// 确保所有必需的配置项都有值
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{Port: "8080", Host: "0.0.0.0"}
	}
	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{Path: "./data/tubesort.db"}
	}
	if cfg.Browser == nil {
		cfg.Browser = &BrowserConfig{}
	}
	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{Enabled: false}
	}
	if cfg.Sort == nil {
		cfg.Sort = defaultSortConfig()
	} else {
		applySortDefaults(cfg.Sort)
	}
	if cfg.Log == nil {
		cfg.Log = &logger.LoggerConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		}
	}

	return &cfg, nil
}

func defaultSortConfig() *SortConfig {
	cfg := &SortConfig{}
	applySortDefaults(cfg)
	return cfg
}

func applySortDefaults(cfg *SortConfig) {
	if cfg.Order == "" {
		cfg.Order = "asc"
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = 800
	}
	if cfg.MoveDelay <= 0 {
		cfg.MoveDelay = 500
	}
	if cfg.MoveAttempts <= 0 {
		cfg.MoveAttempts = 3
	}
	if cfg.NavTimeoutMs <= 0 {
		cfg.NavTimeoutMs = 60000
	}
}
