package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/memdl/internal/domain"
	"github.com/John-Robertt/memdl/internal/fetch"
	"github.com/John-Robertt/memdl/internal/infra/fsx"
	"github.com/John-Robertt/memdl/internal/naming"
)

// DefaultSpacing 是两次任务启动之间的默认间隔。
const DefaultSpacing = time.Millisecond

// RunConfig 是一次运行的执行参数（已由 config 层合并、校验）。
type RunConfig struct {
	ZipPath   string
	OutputDir string

	// Spacing 是相邻两次任务启动之间的最小间隔（全局，不区分目标主机）。
	Spacing time.Duration
	// Limit>0 时只处理前 Limit 条记录。
	Limit int
	// Concurrency>0 时限制同时在途的任务数；<=0 表示不限制，只靠 Spacing 控速。
	Concurrency int

	Logger *slog.Logger
}

func (c RunConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Execute 执行一次批量下载，并返回对外稳定的 RunReport。
// 单条记录失败只会写入报告，不会中止整批。
func Execute(ctx context.Context, records []domain.Record, cfg RunConfig, f fetch.Fetcher) domain.RunReport {
	return ExecuteWithObserver(ctx, records, cfg, f, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
//
// 并发模型：
// - 发射 goroutine 按记录顺序启动任务，每次启动前等待 Spacing
// - 每条记录一个任务 goroutine，恰好发送一条 Outcome
// - 结果 channel 容量等于任务数，发送永不阻塞
// - 调用方 goroutine 是唯一的汇总者：恰好接收 n 条，按到达顺序更新报告
//
// 没有取消机制：ctx 只向下传递取值，它的取消不会中断节奏等待或在途请求，
// 每条记录都会启动并跑完，报告条目数始终等于记录数。
// 放弃整批的唯一时机是调用之前（确认环节）。
//
// obs 非空时，OnFinish 在返回前一定被调用，批次级错误也不例外。
func ExecuteWithObserver(ctx context.Context, records []domain.Record, cfg RunConfig, f fetch.Fetcher, obs Observer) (rr domain.RunReport) {
	log := cfg.logger()
	ctx = context.WithoutCancel(ctx)

	if cfg.Limit > 0 && cfg.Limit < len(records) {
		records = records[:cfg.Limit]
	}
	n := len(records)

	rr = domain.RunReport{
		ZipPath:   cfg.ZipPath,
		OutputDir: cfg.OutputDir,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, n),
	}
	if obs != nil {
		defer func() { obs.OnFinish(rr.Summary) }()
	}

	// 批次级错误：任何任务启动之前发现，整批中止。
	if f == nil {
		return fatal(rr, domain.ErrCodeConfigInvalid, "fetcher 不能为空")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return fatal(rr, domain.ErrCodeConfigInvalid, "输出目录不能为空")
	}
	if err := ensureDir(cfg.OutputDir); err != nil {
		log.Error("创建输出目录失败", "dir", cfg.OutputDir, "err", err)
		return fatal(rr, domain.ErrCodeIOFailed, fmt.Sprintf("创建输出目录失败：%v", err))
	}

	if obs != nil {
		obs.OnStart(cfg, n)
	}
	log.Info("开始下载", "total", n, "spacing", cfg.Spacing.String(), "concurrency", cfg.Concurrency, "fetcher", f.Name())

	results := make(chan domain.Outcome, n)

	var sem *semaphore.Weighted
	if cfg.Concurrency > 0 {
		sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range records {
			pace(cfg.Spacing)
			if sem != nil {
				_ = sem.Acquire(ctx, 1)
			}
			wg.Add(1)
			go func(idx int, rec domain.Record) {
				defer wg.Done()
				if sem != nil {
					defer sem.Release(1)
				}
				results <- runTask(ctx, idx, rec, cfg.OutputDir, f)
			}(i, records[i])
			if obs != nil {
				obs.OnLaunched(i+1, n)
			}
		}
	}()

	for done := 1; done <= n; done++ {
		o := <-results
		rr.Add(o)
		logOutcome(log, o)
		if obs != nil {
			obs.OnItemDone(done, n, records[o.Index], o)
		}
	}
	wg.Wait()

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Info("下载结束",
		"total", rr.Summary.Total,
		"downloaded", rr.Summary.Downloaded,
		"skipped", rr.Summary.Skipped,
		"failed", rr.Summary.Failed,
		"elapsed_ms", rr.FinishedAt.Sub(rr.StartedAt).Milliseconds(),
	)
	return rr
}

// 任务阶段，用于给 panic 归类。
const (
	stagePrepare = "prepare"
	stageFetch   = "fetch"
	stageWrite   = "write"
)

// runTask 处理一条记录并返回它唯一的 Outcome。
// panic 也会被转换为失败结果：下载阶段记为 transfer_failed，其余记为 write_failed。
func runTask(ctx context.Context, idx int, rec domain.Record, dir string, f fetch.Fetcher) (out domain.Outcome) {
	started := time.Now()
	stage := stagePrepare
	out = domain.Outcome{Index: idx, Status: domain.StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			out.Status = domain.StatusFailed
			out.ErrorCode = panicCode(stage)
			out.ErrorMsg = fmt.Sprintf("任务异常退出（stage=%s）：%v", stage, r)
			out.Bytes = 0
		}
		out.Duration = time.Since(started)
	}()

	out.Path = naming.Resolve(rec, dir)

	// 幂等：目标已存在则不发任何网络请求。
	if fsx.Exists(out.Path) {
		out.Status = domain.StatusSkipped
		out.ErrorCode = domain.ErrCodeAlreadyExists
		out.ErrorMsg = "文件已存在"
		return out
	}

	stage = stageFetch
	b, err := f.Fetch(ctx, rec.Link)
	if err != nil {
		out.ErrorCode = fetchCode(err)
		out.ErrorMsg = fetch.Humanize(err)
		return out
	}

	stage = stageWrite
	if err := fsx.WriteFileAtomicNoOverwrite(filepath.Dir(out.Path), filepath.Base(out.Path), b); err != nil {
		if errors.Is(err, os.ErrExist) {
			// 两条记录解析到同一文件名时，后完成的一条落到这里。
			out.Status = domain.StatusSkipped
			out.ErrorCode = domain.ErrCodeAlreadyExists
			out.ErrorMsg = "文件已存在"
			return out
		}
		out.ErrorCode = domain.ErrCodeWriteFailed
		out.ErrorMsg = fmt.Sprintf("写入失败：%v", err)
		return out
	}

	out.Status = domain.StatusDownloaded
	out.Bytes = int64(len(b))
	return out
}

func fetchCode(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) && fe.Code != "" {
		return fe.Code
	}
	return domain.ErrCodeTransferFailed
}

func panicCode(stage string) string {
	if stage == stageFetch {
		return domain.ErrCodeTransferFailed
	}
	return domain.ErrCodeWriteFailed
}

func logOutcome(log *slog.Logger, o domain.Outcome) {
	attrs := []any{
		"index", o.Index,
		"path", o.Path,
		"status", o.Status,
		"bytes", o.Bytes,
		"dur_ms", o.Duration.Milliseconds(),
	}
	switch o.Status {
	case domain.StatusDownloaded:
		log.Info("条目完成", attrs...)
	case domain.StatusSkipped:
		log.Info("条目跳过", append(attrs, "error_code", o.ErrorCode)...)
	default:
		log.Warn("条目失败", append(attrs, "error_code", o.ErrorCode, "error_msg", o.ErrorMsg)...)
	}
}

func fatal(rr domain.RunReport, code, msg string) domain.RunReport {
	rr.Items = append(rr.Items, domain.ItemResult{
		Index:     -1,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	})
	rr.ErrorLog = append(rr.ErrorLog, code+": "+msg)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// pace 阻塞 d。
func pace(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
