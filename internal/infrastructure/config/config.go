package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 儲存 session agent 及外部相依的執行設定。
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	API     APIConfig     `yaml:"api"`
	DB      DBConfig      `yaml:"db"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
}

// BridgeConfig 本機 UI bridge 的 HTTP 設定。
type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// APIConfig 遠端後台 API 的連線設定。
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DBConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxIdleTime  time.Duration `yaml:"max_idle_time"`
}

// RedisConfig 跨分頁廣播的主要傳輸設定；Addr 留空表示不使用 Redis。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig 本機狀態目錄。SpoolDir 留空時使用 StateDir/events。
type StorageConfig struct {
	StateDir string `yaml:"state_dir"`
	SpoolDir string `yaml:"spool_dir"`
	Origin   string `yaml:"origin"`
}

// SessionConfig 控制 session 生命週期的各項時間參數。
type SessionConfig struct {
	TTL               time.Duration `yaml:"ttl"`                // 後端未提供 expires_in 時的預設存續時間
	WarningBefore     time.Duration `yaml:"warning_before"`     // 到期前多久顯示警告
	RefreshBuffer     time.Duration `yaml:"refresh_buffer"`     // 排程 refresh 提前量
	RefreshThreshold  time.Duration `yaml:"refresh_threshold"`  // 週期檢查觸發主動 refresh 的剩餘時間
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"` // 非 remember-me session 的閒置上限
	CheckInterval     time.Duration `yaml:"check_interval"`     // 週期檢查間隔
	ActivityWindow    time.Duration `yaml:"activity_window"`    // 「最近有活動」的認定窗口
	Debounce          time.Duration `yaml:"debounce"`           // 活動事件去抖動
	LoginRoute        string        `yaml:"login_route"`
	DefaultRoute      string        `yaml:"default_route"`
}

// LoadFromFile 從 YAML 組態檔載入設定。
func LoadFromFile(path string) (Config, error) {
	// 嘗試載入 .env 檔案（如果存在）
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg = applyDefaults(cfg)
	cfg = applyEnv(cfg)
	return cfg, nil
}

func applyDefaults(cfg Config) Config {
	if cfg.Bridge.Addr == "" {
		cfg.Bridge.Addr = ":7780"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10 * time.Second
	}
	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 5
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 2
	}
	if cfg.DB.MaxIdleTime == 0 {
		cfg.DB.MaxIdleTime = 15 * time.Minute
	}
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = ".admin-session"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Session.WarningBefore == 0 {
		cfg.Session.WarningBefore = 5 * time.Minute
	}
	if cfg.Session.RefreshBuffer == 0 {
		cfg.Session.RefreshBuffer = 2 * time.Minute
	}
	if cfg.Session.RefreshThreshold == 0 {
		cfg.Session.RefreshThreshold = 10 * time.Minute
	}
	if cfg.Session.InactivityTimeout == 0 {
		cfg.Session.InactivityTimeout = 30 * time.Minute
	}
	if cfg.Session.CheckInterval == 0 {
		cfg.Session.CheckInterval = time.Minute
	}
	if cfg.Session.ActivityWindow == 0 {
		cfg.Session.ActivityWindow = time.Minute
	}
	if cfg.Session.Debounce == 0 {
		cfg.Session.Debounce = time.Second
	}
	if cfg.Session.LoginRoute == "" {
		cfg.Session.LoginRoute = "/login"
	}
	if cfg.Session.DefaultRoute == "" {
		cfg.Session.DefaultRoute = "/dashboard"
	}
	return cfg
}

func applyEnv(cfg Config) Config {
	if val := os.Getenv("BRIDGE_ADDR"); val != "" {
		cfg.Bridge.Addr = val
	}
	if val := os.Getenv("PORT"); val != "" {
		cfg.Bridge.Addr = ":" + val
	}
	if val := os.Getenv("API_BASE_URL"); val != "" {
		cfg.API.BaseURL = val
	}
	if val := os.Getenv("DB_DSN"); val != "" {
		cfg.DB.DSN = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = n
		}
	}
	if val := os.Getenv("STATE_DIR"); val != "" {
		cfg.Storage.StateDir = val
	}
	if val := os.Getenv("SPOOL_DIR"); val != "" {
		cfg.Storage.SpoolDir = val
	}
	if val := os.Getenv("SESSION_ORIGIN"); val != "" {
		cfg.Storage.Origin = val
	}
	if val := os.Getenv("SESSION_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Session.TTL = d
		}
	}
	if val := os.Getenv("SESSION_CHECK_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Session.CheckInterval = d
		}
	}
	if val := os.Getenv("SESSION_INACTIVITY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Session.InactivityTimeout = d
		}
	}
	return cfg
}
