package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	EnvLevel     = "IMCMSG_LOG_LEVEL"
	EnvFormat    = "IMCMSG_LOG_FORMAT"
	EnvAddSource = "IMCMSG_LOG_ADD_SOURCE"
)

// Format 日志输出格式
type Format int

const (
	// FormatText key=value 文本（默认）
	FormatText Format = iota
	// FormatJSON 每行一个 JSON 对象
	FormatJSON
)

// Config 日志配置
type Config struct {
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
	Format       Format
	AddSource    bool
}

// LevelFor 返回子系统级别。
//
// 子系统按 "/" 分段逐级回退：core/transport/udp 未配置时依次查找
// core/transport、core，最后使用默认级别。
func (c *Config) LevelFor(subsystem string) slog.Level {
	for s := subsystem; s != ""; {
		if lvl, ok := c.Levels[s]; ok {
			return lvl
		}
		i := strings.LastIndex(s, "/")
		if i < 0 {
			break
		}
		s = s[:i]
	}
	return c.DefaultLevel
}

var (
	envConfig     *Config
	envConfigOnce sync.Once
)

// ConfigFromEnv 解析一次环境变量并缓存结果
func ConfigFromEnv() *Config {
	envConfigOnce.Do(func() {
		envConfig = ParseConfig(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
	})
	return envConfig
}

// ParseConfig 解析级别串、格式串与 add-source 开关
//
// 级别串格式: 子系统=级别,...,默认级别
func ParseConfig(levels, format, addSource string) *Config {
	cfg := &Config{
		DefaultLevel: slog.LevelInfo,
		Levels:       make(map[string]slog.Level),
	}

	for _, part := range strings.Split(levels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, hasName := strings.Cut(part, "=")
		if !hasName {
			if l, ok := parseLevel(name); ok {
				cfg.DefaultLevel = l
			}
			continue
		}
		if l, ok := parseLevel(strings.TrimSpace(lvl)); ok {
			cfg.Levels[strings.TrimSpace(name)] = l
		}
	}

	if strings.EqualFold(format, "json") {
		cfg.Format = FormatJSON
	}
	cfg.AddSource = addSource == "1" || strings.EqualFold(addSource, "true")
	return cfg
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
