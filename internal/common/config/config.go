package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Booking  BookingConfig  `json:"booking"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// ConfigKey 非空时，启动阶段用该 KV 键下的 JSON 片段覆盖文件配置
	ConfigKey string `json:"config_key"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	Enabled     bool   `json:"enabled"`
	JWTSecret   string `json:"jwt_secret"`
	Issuer      string `json:"issuer"`
	Audience    string `json:"audience"`
	TokenTTLMin int    `json:"token_ttl_min"` // access token 有效期（分钟）
}

// TokenTTL 返回 access token 有效期。
func (c AuthConfig) TokenTTL() time.Duration {
	if c.TokenTTLMin <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TokenTTLMin) * time.Minute
}

// BookingConfig 预订引擎配置
type BookingConfig struct {
	Currency           string `json:"currency"`             // 计价币种（ISO 4217）
	StorageTimeoutSec  int    `json:"storage_timeout_sec"`  // 单次存储调用超时
	RetryBackoffMillis int    `json:"retry_backoff_millis"` // 瞬时故障重试退避
	SweepIntervalSec   int    `json:"sweep_interval_sec"`   // 到期预订巡检周期
	RateLimitPerSec    int64  `json:"rate_limit_per_sec"`   // 每客户端每秒请求数
	RateLimitBurst     int64  `json:"rate_limit_burst"`     // 令牌桶容量
}

// StorageTimeout 返回单次存储调用的超时时间。
func (c BookingConfig) StorageTimeout() time.Duration {
	if c.StorageTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StorageTimeoutSec) * time.Second
}

// RetryBackoff 返回瞬时故障的重试退避时间。
func (c BookingConfig) RetryBackoff() time.Duration {
	if c.RetryBackoffMillis <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.RetryBackoffMillis) * time.Millisecond
}

// SweepInterval 返回到期预订巡检周期。
func (c BookingConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSec <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SweepIntervalSec) * time.Second
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "rental-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "neodrive",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled:     true,
			JWTSecret:   "dev-only-secret",
			Issuer:      "neodrive",
			Audience:    "neodrive-web",
			TokenTTLMin: 24 * 60,
		},
		Booking: BookingConfig{
			Currency:           "USD",
			StorageTimeoutSec:  5,
			RetryBackoffMillis: 200,
			SweepIntervalSec:   600,
			RateLimitPerSec:    20,
			RateLimitBurst:     40,
		},
	}
}
