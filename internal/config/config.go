package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevJWTSecret 是本地开发使用的默认签名密钥，生产环境必须替换。
const DevJWTSecret = "dev_secret_change_me"

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env                 string  `json:"env"`                   // 运行环境: local / prod
	LogLevel            string  `json:"log_level"`             // 日志级别: debug / info / warn / error
	HTTPAddr            string  `json:"http_addr"`             // API 服务监听地址
	MetricsAddr         string  `json:"metrics_addr"`          // 独立 worker 的 metrics 监听地址
	RateLimit           float64 `json:"rate_limit"`            // 登录/注册限流速率（token/s）
	RateBurst           float64 `json:"rate_burst"`            // 限流桶容量
	NotifyWorkers       int     `json:"notify_workers"`        // 通知发送 worker 数
	NotifyQueueCapacity int     `json:"notify_queue_capacity"` // 通知队列容量
	SeedDemo            bool    `json:"seed_demo"`             // 启动时写入演示数据
	DemoPassword        string  `json:"demo_password"`         // 演示账号密码
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / postgres / sqlite
	DSN    string `json:"dsn"`    // 数据库连接字符串
}

// RedisConfig Redis 配置（Addr 为空表示不启用）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Enabled 判断 SMTP 配置是否完整。
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.SMTPUser != "" && e.FromEmail != ""
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret  string        `json:"jwt_secret"`  // JWT 签名密钥
	TokenTTL   time.Duration `json:"token_ttl"`   // JWT 有效期（如 "168h"）
	CronSecret string        `json:"cron_secret"` // 手动触发提醒处理的密钥（为空表示不校验）
}

// StorageConfig 附件存储配置。
type StorageConfig struct {
	Backend     string `json:"backend"`       // local / ftp
	LocalDir    string `json:"local_dir"`     // 本地存储目录
	MaxFileSize int64  `json:"max_file_size"` // 单个附件最大字节数
	FTPHost     string `json:"ftp_host"`
	FTPPort     int    `json:"ftp_port"`
	FTPUser     string `json:"ftp_user"`
	FTPPassword string `json:"ftp_password"`
	FTPBaseDir  string `json:"ftp_base_dir"`
}

// ReminderConfig 提醒处理配置。
type ReminderConfig struct {
	Enabled     bool          `json:"enabled"`      // 是否在 API 进程内启动定时处理
	Schedule    string        `json:"schedule"`     // cron 表达式（如 "@every 1m"）
	AutoCreate  bool          `json:"auto_create"`  // 创建待办时按截止时间生成默认提醒
	BatchSize   int           `json:"batch_size"`   // 单次处理的最大提醒数
	DedupWindow time.Duration `json:"dedup_window"` // 发送去重窗口（如 "24h"）
}

// Load 从 JSON 文件加载配置。
//
// 它会先加载 .env（若存在），再读取 configs/config.json，文件不存在时使用默认值，
// 最后由环境变量覆盖。
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 以默认值为底，未出现在文件中的布尔开关保持默认
	cfg := getDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate 检查启动前必须满足的配置：生产环境不允许使用默认或空的 JWT 密钥。
func (c *Config) Validate() error {
	if !strings.EqualFold(c.App.Env, "prod") {
		return nil
	}
	if c.Security.JWTSecret == "" || c.Security.JWTSecret == DevJWTSecret {
		return errors.New("jwt secret must be set in prod (JWT_SECRET)")
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:                 "local",
			LogLevel:            "info",
			HTTPAddr:            ":8080",
			MetricsAddr:         ":9091",
			RateLimit:           1,
			RateBurst:           10,
			NotifyWorkers:       4,
			NotifyQueueCapacity: 256,
			SeedDemo:            false,
			DemoPassword:        "demo123456",
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/todo_manager?parseTime=true&loc=UTC&charset=utf8mb4",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret: DevJWTSecret,
			TokenTTL:  7 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Backend:     "local",
			LocalDir:    "uploads/attachments",
			MaxFileSize: 10 << 20,
			FTPPort:     21,
		},
		Reminder: ReminderConfig{
			Enabled:     true,
			Schedule:    "@every 1m",
			AutoCreate:  true,
			BatchSize:   500,
			DedupWindow: 24 * time.Hour,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.App.NotifyWorkers == 0 {
		cfg.App.NotifyWorkers = defaults.App.NotifyWorkers
	}
	if cfg.App.NotifyQueueCapacity == 0 {
		cfg.App.NotifyQueueCapacity = defaults.App.NotifyQueueCapacity
	}
	if cfg.App.DemoPassword == "" {
		cfg.App.DemoPassword = defaults.App.DemoPassword
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == defaults.Database.Driver {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = defaults.Storage.LocalDir
	}
	if cfg.Storage.MaxFileSize == 0 {
		cfg.Storage.MaxFileSize = defaults.Storage.MaxFileSize
	}
	if cfg.Storage.FTPPort == 0 {
		cfg.Storage.FTPPort = defaults.Storage.FTPPort
	}
	if cfg.Reminder.Schedule == "" {
		cfg.Reminder.Schedule = defaults.Reminder.Schedule
	}
	if cfg.Reminder.BatchSize == 0 {
		cfg.Reminder.BatchSize = defaults.Reminder.BatchSize
	}
	if cfg.Reminder.DedupWindow == 0 {
		cfg.Reminder.DedupWindow = defaults.Reminder.DedupWindow
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("cron_secret", "CRON_SECRET")
	_ = viper.BindEnv("ftp_password", "FTP_PASSWORD")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_NOTIFY_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.NotifyWorkers = i
		}
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		cfg.App.SeedDemo = v == "true" || v == "1"
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" && (hasAnyEnv("DB_PORT", "DB_USER", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			parsed.Addr = v + ":" + getenvDefault("DB_PORT", parsed.Addr, "3306")
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := viper.GetString("cron_secret"); v != "" {
		cfg.Security.CronSecret = v
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = d
		}
	}

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("STORAGE_LOCAL_DIR"); v != "" {
		cfg.Storage.LocalDir = v
	}
	if v := os.Getenv("STORAGE_MAX_FILE_SIZE"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.MaxFileSize = i
		}
	}
	if v := os.Getenv("FTP_HOST"); v != "" {
		cfg.Storage.FTPHost = v
	}
	if v := os.Getenv("FTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Storage.FTPPort = i
		}
	}
	if v := os.Getenv("FTP_USER"); v != "" {
		cfg.Storage.FTPUser = v
	}
	if v := viper.GetString("ftp_password"); v != "" {
		cfg.Storage.FTPPassword = v
	}
	if v := os.Getenv("FTP_BASE_DIR"); v != "" {
		cfg.Storage.FTPBaseDir = v
	}

	if v := os.Getenv("REMINDER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reminder.Enabled = b
		}
	}
	if v := os.Getenv("REMINDER_SCHEDULE"); v != "" {
		cfg.Reminder.Schedule = v
	}
	if v := os.Getenv("REMINDER_AUTO_CREATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reminder.AutoCreate = b
		}
	}
	if v := os.Getenv("REMINDER_BATCH_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Reminder.BatchSize = i
		}
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := func() *mysql.Config {
		c := mysql.NewConfig()
		c.User = "root"
		c.Net = "tcp"
		c.Addr = "localhost:3306"
		c.DBName = "todo_manager"
		c.ParseTime = true
		c.Params = map[string]string{"charset": "utf8mb4"}
		return c
	}
	if dsn == "" {
		return fallback()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback()
	}
	return parsed
}

// UnmarshalJSON 支持 Duration 字符串（如 "168h"）。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = d
	}
	return nil
}

// MarshalJSON 将 Duration 输出为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		TokenTTL: s.TokenTTL.String(),
		Alias:    (*Alias)(&s),
	})
}

// UnmarshalJSON 支持 Duration 字符串（如 "24h"）。
func (r *ReminderConfig) UnmarshalJSON(data []byte) error {
	type Alias ReminderConfig
	aux := &struct {
		DedupWindow string `json:"dedup_window"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DedupWindow != "" {
		d, err := time.ParseDuration(aux.DedupWindow)
		if err != nil {
			return fmt.Errorf("invalid dedup_window format: %w", err)
		}
		r.DedupWindow = d
	}
	return nil
}

// MarshalJSON 将 Duration 输出为字符串。
func (r ReminderConfig) MarshalJSON() ([]byte, error) {
	type Alias ReminderConfig
	return json.Marshal(&struct {
		DedupWindow string `json:"dedup_window"`
		*Alias
	}{
		DedupWindow: r.DedupWindow.String(),
		Alias:       (*Alias)(&r),
	})
}
