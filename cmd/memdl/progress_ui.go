package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/memdl/internal/app/run"
	"github.com/John-Robertt/memdl/internal/config"
	"github.com/John-Robertt/memdl/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w   io.Writer
	eff config.EffectiveConfig

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total    int
	launched int
	done     int
	ok       int
	fail     int
	skip     int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, eff config.EffectiveConfig) *progressUI {
	return &progressUI{
		w:                  w,
		eff:                eff,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(cfg run.RunConfig, total int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = total

	fmt.Fprintf(p.w, "[%s] memdl run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  zip: %s\n", cfg.ZipPath)
	fmt.Fprintf(p.w, "  out: %s\n", cfg.OutputDir)
	fmt.Fprintf(p.w, "  resolver: %s\n", p.eff.Resolver)
	fmt.Fprintf(p.w, "  spacing: %s\n", cfg.Spacing)
	fmt.Fprintf(p.w, "  concurrency: %s\n", formatConcurrency(cfg.Concurrency))
	if cfg.Limit > 0 {
		fmt.Fprintf(p.w, "  limit: %d%s\n", cfg.Limit, devNote(p.eff.DevMode))
	}
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.eff.ProxyURL))
	fmt.Fprintf(p.w, "  timeout: %s\n", p.eff.Timeout)
	if p.eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", p.eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "执行: total_items=%d\n\n", total)

	p.lastPrinted = time.Now()
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnLaunched(launched, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launched = launched
}

func (p *progressUI) OnItemDone(done, total int, rec domain.Record, o domain.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// done/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = done
	p.total = total

	name := filepath.Base(o.Path)
	if name == "" || name == "." {
		name = rec.CapturedAt
	}

	switch o.Status {
	case domain.StatusDownloaded:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s (%s)\n",
			done, total, name, formatBytes(o.Bytes), formatShortDuration(o.Duration),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s\n", done, total, name, o.ErrorCode)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			done, total, name, o.ErrorCode, truncate(o.ErrorMsg, 160), formatShortDuration(o.Duration),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

// OnFinish 停止 keepalive ticker；批次级错误时也会被调用。
func (p *progressUI) OnFinish(s domain.ReportSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

// progressLineLocked 返回 keepalive 行；调用方必须持有 p.mu。
func (p *progressUI) progressLineLocked() string {
	active := p.launched - p.done
	if active < 0 {
		active = 0
	}
	return fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d active=%d launched=%d elapsed=%s",
		p.done, p.total, p.ok, p.fail, p.skip, active, p.launched, formatElapsed(time.Since(p.startedAt)),
	)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已停止或已完成：退出。等锁期间 stopCh 可能已被关闭。
				if !p.tickerStarted || p.stopCh != stop || (p.total > 0 && p.done >= p.total) {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.progressLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func devNote(dev bool) string {
	if dev {
		return "（开发者模式）"
	}
	return ""
}

func formatConcurrency(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
