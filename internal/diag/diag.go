// Package diag 提供运行日志：JSON 行写入 <out>/.memdl/memdl.log，每行带 run_id。
package diag

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// StateDir 是输出目录下存放日志与报告的隐藏目录。
	StateDir = ".memdl"
	LogFile  = "memdl.log"
)

// NewRunID 生成一次运行的关联 ID。
func NewRunID() string { return uuid.New().String() }

// ParseLevel 把配置中的日志级别转换为 slog.Level；未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 构造 JSON logger；w 为 nil 时丢弃所有输出。
func NewLogger(w io.Writer, level, runID string) *slog.Logger {
	if w == nil {
		return slog.New(slog.DiscardHandler)
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	l := slog.New(h)
	if runID != "" {
		l = l.With("run_id", runID)
	}
	return l
}

// OpenLogFile 以追加模式打开 <outDir>/.memdl/memdl.log（必要时创建目录）。
func OpenLogFile(outDir string) (*os.File, error) {
	dir := filepath.Join(outDir, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}
