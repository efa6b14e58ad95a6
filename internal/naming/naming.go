package naming

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/memdl/internal/domain"
)

// Extension 按媒体类型返回文件扩展名（不含点）。
func Extension(kind domain.MediaKind) string {
	switch kind {
	case domain.KindImage:
		return "jpg"
	case domain.KindVideo:
		return "mp4"
	default:
		return "unknown"
	}
}

// Resolve 把一条记录映射为确定的落盘路径：<dir>/Memory <date>.<ext>。
//
// 约束：
// - 纯函数，不做 I/O：相同 (record, dir) 必须得到相同路径（skip-if-exists 依赖这一点）
// - 冒号在常见文件系统上非法，统一替换为 '-'
func Resolve(rec domain.Record, dir string) string {
	date := strings.ReplaceAll(rec.CapturedAt, ":", "-")
	return filepath.Join(dir, "Memory "+date+"."+Extension(rec.Kind))
}
