package run

import (
	"github.com/John-Robertt/memdl/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - OnLaunched 来自发射 goroutine，其余事件来自调用 ExecuteWithObserver 的 goroutine；
//   实现需要自行保证并发安全。
type Observer interface {
	// OnStart 在批次级检查通过之后、任何任务启动之前调用（total 已应用 Limit）。
	OnStart(cfg RunConfig, total int)
	// OnLaunched 在第 launched 个任务启动后调用。
	OnLaunched(launched, total int)
	// OnItemDone 按完成先后调用，done 从 1 递增到 total。
	OnItemDone(done, total int, rec domain.Record, o domain.Outcome)
	// OnFinish 在 ExecuteWithObserver 返回前调用且只调用一次，批次级错误时 OnStart 可能没有被调用。
	OnFinish(s domain.ReportSummary)
}
