package fetch

import "context"

// Fetcher 把记录中的 link 解析为资源的原始字节。
//
// 约束：
// - 不做缓存、不做重试、不做限速（限速由 orchestrator 统一控制）
// - 失败必须返回 *Error，且 Code 属于固定分类，便于按阶段诊断
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, link string) ([]byte, error)
}
