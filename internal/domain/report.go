package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

const (
	// 条目级错误：只影响单条记录，不中止整批。
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeRequestFailed    = "request_failed"
	ErrCodeResolutionFailed = "resolution_failed"
	ErrCodeTransferFailed   = "transfer_failed"
	ErrCodeWriteFailed      = "write_failed"

	// 批次级错误：在任何任务启动前发生，整批中止。
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeManifestInvalid = "manifest_invalid"
	ErrCodeIOFailed        = "io_failed"
)

// Outcome 是单个下载任务的唯一结果消息。
// 每个已启动的任务恰好产生一条，由汇总循环恰好消费一次。
type Outcome struct {
	Index     int
	Path      string
	Status    string
	ErrorCode string
	ErrorMsg  string
	Bytes     int64
	Duration  time.Duration
}

// Failed 表示该结果需要写入错误日志（already_exists 也算，便于用户看到）。
func (o Outcome) Failed() bool { return o.Status != StatusDownloaded }

// Cause 是错误日志中的原因文本：error_code 加上可读说明。
func (o Outcome) Cause() string {
	if o.ErrorMsg == "" {
		return o.ErrorCode
	}
	return o.ErrorCode + ": " + o.ErrorMsg
}

// RunReport 是一次运行的汇总结果（report.json / stdout JSON）。
type RunReport struct {
	ZipPath   string `json:"zip_path"`
	OutputDir string `json:"output_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`

	// ErrorLog 按完成先后追加（不是记录顺序），调用方只能依赖其中的 index。
	ErrorLog []string `json:"error_log"`
}

type ReportSummary struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type ItemResult struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Bytes     int64  `json:"bytes"`
}

// Add 把一条 Outcome 并入报告。只允许由汇总循环调用（单写者）。
func (r *RunReport) Add(o Outcome) {
	r.Items = append(r.Items, ItemResult{
		Index:     o.Index,
		Path:      o.Path,
		Status:    o.Status,
		ErrorCode: o.ErrorCode,
		ErrorMsg:  o.ErrorMsg,
		Bytes:     o.Bytes,
	})
	if o.Failed() {
		r.ErrorLog = append(r.ErrorLog, fmt.Sprintf("%d: %s", o.Index, o.Cause()))
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按 index 稳定排序（error_log 保持到达顺序，不参与排序）
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Index < r.Items[j].Index })

	s := ReportSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusDownloaded:
			s.Downloaded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// HasErrors 表示错误日志非空（already_exists 也计入）。
func (r RunReport) HasErrors() bool { return len(r.ErrorLog) > 0 }

// Text 返回可直接打印到终端的单段报告。
func (r RunReport) Text() string {
	if !r.HasErrors() {
		return "下载完成，0 个错误。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "下载完成，%d 个错误：", len(r.ErrorLog))
	for _, line := range r.ErrorLog {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

// MarshalJSON 保证 nil 切片输出为 []，而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	if a.ErrorLog == nil {
		a.ErrorLog = []string{}
	}
	return json.Marshal(a)
}
