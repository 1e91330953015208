// Package logger 提供 imcmsg 的分子系统日志
//
// 基于标准库 log/slog：
//
//	var log = logger.Logger("core/router")
//	log.Debug("消息已路由", "src", src, "kind", kind)
//
// 环境变量:
//
//	# router 为 debug，其余为 info
//	IMCMSG_LOG_LEVEL=core/router=debug,info
//
//	# JSON 输出
//	IMCMSG_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 子系统 -> *slog.Logger
	loggers sync.Map

	// handlers 子系统 -> *subsystemHandler，用于运行时调级
	handlers sync.Map
)

// Logger 获取子系统的 Logger，同名子系统返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelFor(subsystem), cfg)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 运行时调整子系统级别；子系统尚未创建时无效果。
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).setLevel(level)
	}
}

// SetAllLevels 调整所有已创建子系统的级别
func SetAllLevels(level slog.Level) {
	handlers.Range(func(_, v any) bool {
		v.(*subsystemHandler).setLevel(level)
		return true
	})
}

// SetOutput 切换全部 Logger 的输出目标（包括已创建的）。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃一切的 Logger，测试用
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
