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
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Email     EmailConfig     `mapstructure:"email"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 数据库配置
// Driver 支持 mysql / postgres / sqlite，sqlite 时只使用 Path
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	LogLevel string `mapstructure:"log_level"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// EmailConfig 邮件配置，用于发送期间预算报表
type EmailConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Host             string   `mapstructure:"host"`
	Port             int      `mapstructure:"port"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"`
	From             string   `mapstructure:"from"`
	ReportRecipients []string `mapstructure:"report_recipients"`
}

// BudgetConfig 预算引擎策略开关
type BudgetConfig struct {
	// WriteRoles 允许执行写操作（填充、记录实际、状态变更）的角色
	WriteRoles []string `mapstructure:"write_roles"`
	// StrictLevelStep 子节点层级必须等于父节点层级 + 1；关闭时只要求严格大于
	StrictLevelStep bool `mapstructure:"strict_level_step"`
	// EnforceClosedPeriod 已关闭期间拒绝一切写操作
	EnforceClosedPeriod bool `mapstructure:"enforce_closed_period"`
	// EnforceStatusTransitions 禁止状态回退（CLOSED → ACTIVE/DRAFT 等）
	EnforceStatusTransitions bool `mapstructure:"enforce_status_transitions"`
	// EnforcePeriodOverlap 同一年度只允许一个日期重叠的 ACTIVE 期间
	EnforcePeriodOverlap bool `mapstructure:"enforce_period_overlap"`
	// BlockReferencedTemplateDelete 模板节点被期间快照引用时禁止删除
	BlockReferencedTemplateDelete bool `mapstructure:"block_referenced_template_delete"`
}

// RateLimitConfig 写接口限流
type RateLimitConfig struct {
	WritePerMinute int `mapstructure:"write_per_minute"`
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
		// 指定了配置文件路径
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Printf("警告: 无法读取指定配置文件 %s: %v", configPath, err)
		} else {
			log.Printf("已合并外部配置文件: %s", configPath)
		}
	} else {
		// 尝试查找外部配置文件
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/parish")
		externalViper.AddConfigPath("$HOME/.parish")

		if err := externalViper.ReadInConfig(); err == nil {
			// 找到外部配置文件，合并配置
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Printf("警告: 合并外部配置失败: %v", err)
			} else {
				log.Printf("已合并外部配置文件: %s", externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 支持环境变量覆盖，如 PARISH_DATABASE_DRIVER
	v.SetEnvPrefix("PARISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置 JWT 过期时间
	if cfg.JWT.ExpireHours <= 0 {
		cfg.JWT.ExpireHours = 24
	}
	cfg.JWT.ExpireTime = time.Duration(cfg.JWT.ExpireHours) * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 保存到全局变量
	GlobalConfig = &cfg

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, fmt.Sprintf("%s 需要配置 database.host 和 database.dbname", c.Database.Driver))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "sqlite 需要配置 database.path")
		}
	default:
		errs = append(errs, fmt.Sprintf("不支持的数据库驱动 '%s'，可选 mysql/postgres/sqlite", c.Database.Driver))
	}

	if c.Server.Mode == "release" && (c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret) {
		errs = append(errs, "release 模式下必须修改 jwt.secret")
	}

	if len(c.Budget.WriteRoles) == 0 {
		errs = append(errs, "budget.write_roles 不能为空")
	}

	if c.Email.Enabled && c.Email.Host == "" {
		errs = append(errs, "启用邮件服务时 email.host 不能为空")
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
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

// SafeErrorMessage 生产环境下不向客户端暴露内部错误详情
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
	if GlobalConfig.Database.Driver == "sqlite" {
		log.Printf("  数据库: sqlite %s", GlobalConfig.Database.Path)
	} else {
		log.Printf("  数据库: %s %s@%s:%s/%s",
			GlobalConfig.Database.Driver,
			GlobalConfig.Database.Username,
			GlobalConfig.Database.Host,
			GlobalConfig.Database.Port,
			GlobalConfig.Database.DBName)
	}
	log.Printf("  写权限角色: %v", GlobalConfig.Budget.WriteRoles)
	log.Printf("  关闭期间写保护: %v, 状态回退保护: %v",
		GlobalConfig.Budget.EnforceClosedPeriod,
		GlobalConfig.Budget.EnforceStatusTransitions)
	log.Printf("  邮件服务: %v", GlobalConfig.Email.Enabled)
}
