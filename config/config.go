package config

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Email      EmailConfig      `mapstructure:"email"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Invitation InvitationConfig `mapstructure:"invitation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"` // 前端地址，用于邀请邮件中的链接
}

// DatabaseConfig 数据库配置
// Driver 为 mysql 时使用 Host/Port 等字段；为 sqlite 时只使用 Path
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// StorageConfig 对象存储配置（S3 兼容）
type StorageConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Bucket              string `mapstructure:"bucket"`
	Region              string `mapstructure:"region"`
	Endpoint            string `mapstructure:"endpoint"` // 自定义 endpoint，如 MinIO
	AccessKey           string `mapstructure:"access_key"`
	SecretKey           string `mapstructure:"secret_key"`
	PublicBaseURL       string `mapstructure:"public_base_url"` // 配置后头像直接走公共地址，否则生成预签名 GET
	UploadExpireMinutes int    `mapstructure:"upload_expire_minutes"`
}

// InvitationConfig 标签邀请配置
type InvitationConfig struct {
	ExpireDays   int    `mapstructure:"expire_days"`
	SweepEnabled bool   `mapstructure:"sweep_enabled"`
	SweepSpec    string `mapstructure:"sweep_spec"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	LoginPerMinute int `mapstructure:"login_per_minute"`
	LoginBurst     int `mapstructure:"login_burst"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 环境变量 > 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}
	log.Println("已加载内置默认配置")

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Printf("警告: 无法读取指定配置文件 %s: %v", configPath, err)
		} else {
			log.Printf("已合并外部配置文件: %s", configPath)
		}
	} else {
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/tally")
		externalViper.AddConfigPath("$HOME/.tally")

		if err := externalViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Printf("警告: 合并外部配置失败: %v", err)
			} else {
				log.Printf("已合并外部配置文件: %s", externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 环境变量覆盖，如 TALLY_DATABASE_DRIVER=mysql
	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg

	return &cfg, nil
}

// applyDefaults 补齐缺省值，避免外部配置写 0 导致不可用
func (c *Config) applyDefaults() {
	if c.JWT.ExpireHours <= 0 {
		c.JWT.ExpireHours = 24
	}
	c.JWT.ExpireTime = time.Duration(c.JWT.ExpireHours) * time.Hour

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Invitation.ExpireDays <= 0 {
		c.Invitation.ExpireDays = 7
	}
	if c.Invitation.SweepSpec == "" {
		c.Invitation.SweepSpec = "@hourly"
	}
	if c.Storage.UploadExpireMinutes <= 0 {
		c.Storage.UploadExpireMinutes = 15
	}
	if c.RateLimit.LoginPerMinute <= 0 {
		c.RateLimit.LoginPerMinute = 10
	}
	if c.RateLimit.LoginBurst <= 0 {
		c.RateLimit.LoginBurst = 5
	}
}

// placeholderSecrets 示例配置中常见的占位密钥，不能用于签发 token
var placeholderSecrets = map[string]bool{
	"change-me-in-production": true,
	"your-secret-key":         true,
	"secret":                  true,
}

// minReleaseSecretLen release 模式下 jwt.secret 的最小长度
const minReleaseSecretLen = 32

// Validate 检查无法靠默认值补齐的配置
func (c *Config) Validate() error {
	if c.Server.Mode != "release" {
		return nil
	}
	secret := strings.TrimSpace(c.JWT.Secret)
	switch {
	case secret == "":
		return fmt.Errorf("release 模式必须配置 jwt.secret (TALLY_JWT_SECRET)")
	case placeholderSecrets[strings.ToLower(secret)]:
		return fmt.Errorf("jwt.secret 仍是占位值，请替换为随机密钥")
	case len(secret) < minReleaseSecretLen:
		return fmt.Errorf("jwt.secret 长度不能少于 %d 字节", minReleaseSecretLen)
	}
	return nil
}

// InvitationTTL 邀请有效期
func (c *Config) InvitationTTL() time.Duration {
	return time.Duration(c.Invitation.ExpireDays) * 24 * time.Hour
}

// MustLoadConfig 加载配置，失败则 panic
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	return cfg
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("配置未初始化，请先调用 LoadConfig")
	}
	return GlobalConfig
}

// SafeErrorMessage release 模式下不向客户端暴露内部错误详情
// GlobalConfig 为 nil 时视为开发环境
func SafeErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if GlobalConfig != nil && GlobalConfig.Server.Mode == "release" {
		return fallback
	}
	return err.Error()
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	log.Printf("当前配置:")
	log.Printf("  服务器: %s (模式: %s)", GlobalConfig.Server.Port, GlobalConfig.Server.Mode)
	if GlobalConfig.Database.Driver == "mysql" {
		log.Printf("  数据库: mysql %s@%s:%s/%s",
			GlobalConfig.Database.Username,
			GlobalConfig.Database.Host,
			GlobalConfig.Database.Port,
			GlobalConfig.Database.DBName)
	} else {
		log.Printf("  数据库: sqlite %s", GlobalConfig.Database.Path)
	}
	log.Printf("  邮件服务: %v", GlobalConfig.Email.Enabled)
	log.Printf("  对象存储: %v (bucket: %s)", GlobalConfig.Storage.Enabled, GlobalConfig.Storage.Bucket)
	log.Printf("  邀请有效期: %d 天, 过期清扫: %v", GlobalConfig.Invitation.ExpireDays, GlobalConfig.Invitation.SweepEnabled)
}
