package domain

import "strings"

// MediaKind 是 manifest 中的媒体类型。
// 未识别的取值统一归为 KindUnknown，不拒绝（单条未知类型不应让整批失败）。
type MediaKind string

const (
	KindImage   MediaKind = "image"
	KindVideo   MediaKind = "video"
	KindUnknown MediaKind = "unknown"
)

// ParseMediaKind 做最小规范化（去空白 + 小写）后映射到 MediaKind。
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	default:
		return KindUnknown
	}
}

// Record 描述 manifest 中的一条媒体记录。
//
// 约束：
// - 加载后只读；orchestrator 只读取，不修改
// - CapturedAt 保持 manifest 原样（冒号分隔），由 naming 负责替换
// - Link 不是资源地址本身，需要经过 fetch 解析
type Record struct {
	CapturedAt string
	Kind       MediaKind
	RawKind    string // manifest 原始值，仅用于诊断
	Link       string
}
