package logger

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level 日志级别。
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	level int32 = int32(LevelInfo)
	std         = log.New(os.Stderr, "", log.LstdFlags|log.Lmsgprefix)
)

func init() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		SetLevel(ParseLevel(v))
	}
}

// ParseLevel 解析级别字符串，未知值回退到 info。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel 设置全局日志级别。
func SetLevel(l Level) {
	atomic.StoreInt32(&level, int32(l))
}

// GetLevel 返回当前日志级别。
func GetLevel() Level {
	return Level(atomic.LoadInt32(&level))
}

func enabled(l Level) bool {
	return l >= GetLevel()
}

// Debugf 输出调试日志。
func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		std.Printf("[DEBUG] "+format, args...)
	}
}

// Infof 输出普通日志。
func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		std.Printf("[INFO] "+format, args...)
	}
}

// Warnf 输出警告日志。
func Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		std.Printf("[WARN] "+format, args...)
	}
}

// Errorf 输出错误日志。
func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		std.Printf("[ERROR] "+format, args...)
	}
}
