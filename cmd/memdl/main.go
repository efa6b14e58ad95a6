package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/John-Robertt/memdl/internal/app/planner"
	"github.com/John-Robertt/memdl/internal/app/run"
	"github.com/John-Robertt/memdl/internal/config"
	"github.com/John-Robertt/memdl/internal/diag"
	"github.com/John-Robertt/memdl/internal/domain"
	"github.com/John-Robertt/memdl/internal/fetch"
	"github.com/John-Robertt/memdl/internal/infra/fsx"
	"github.com/John-Robertt/memdl/internal/infra/httpx"
	"github.com/John-Robertt/memdl/internal/manifest"
)

const (
	version    = "0.1.0"
	reportFile = "report.json"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	switch args[0] {
	case "run":
		// 不拦截 Ctrl-C：启动后的任务不可取消，中断即按默认行为结束进程。
		code := runCmd(context.Background(), args[1:], osEnv())
		if code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

// cliEnv 收拢 runCmd 的外部依赖，测试可替换为内存缓冲。
type cliEnv struct {
	cwd    string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	stdoutTTY bool
	stderrTTY bool

	lookupEnv func(string) (string, bool)
}

func osEnv() cliEnv {
	cwd, _ := os.Getwd()
	return cliEnv{
		cwd:       cwd,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
		lookupEnv: os.LookupEnv,
	}
}

func runCmd(ctx context.Context, args []string, env cliEnv) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage(env.stdout)
			return 0
		}
	}
	// banner 写 stderr：stdout 只留给报告。
	fmt.Fprintf(env.stderr, "memdl v%s 记忆批量下载器\n", version)

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(env.stderr, "参数错误：%v\n\n", err)
		printRunUsage(env.stderr)
		return 2
	}

	if err := config.LoadDotEnv(env.cwd); err != nil {
		fmt.Fprintf(env.stderr, "警告：%v\n", err)
	}

	eff, err := config.LoadEffective(env.cwd, ra.CLIArgs, env.lookupEnv)
	if err != nil {
		if config.Code(err) == config.ErrCodeMissingField {
			fmt.Fprintf(env.stderr, "参数错误：%v\n\n", err)
			printRunUsage(env.stderr)
			return 2
		}
		emitReport(env, fatalReport("", "", domain.ErrCodeConfigInvalid, err.Error()))
		return 1
	}
	for _, w := range eff.Warnings {
		fmt.Fprintln(env.stderr, w)
	}

	records, err := manifest.Load(eff.ZipPath)
	if err != nil {
		code := manifest.Code(err)
		if code == "" {
			code = domain.ErrCodeManifestInvalid
		}
		emitReport(env, fatalReport(eff.ZipPath, eff.OutputDir, code, err.Error()))
		return 1
	}
	if eff.Limit > 0 && eff.Limit < len(records) {
		records = records[:eff.Limit]
	}

	progressW, interactive := pickProgressWriter(env)

	if !eff.Yes {
		s, err := planner.Plan(records, eff.OutputDir)
		if err != nil {
			s = planner.Summary{Total: len(records), Pending: len(records)}
			fmt.Fprintf(env.stderr, "警告：读取输出目录失败：%v\n", err)
		}
		w := progressW
		if w == nil {
			w = env.stderr
		}
		if !confirm(env.stdin, w, eff.OutputDir, s) {
			fmt.Fprintln(w, "已取消，未下载任何文件。")
			return 0
		}
	}

	client, err := httpx.NewClient(eff.ProxyURL, eff.Timeout)
	if err != nil {
		emitReport(env, fatalReport(eff.ZipPath, eff.OutputDir, domain.ErrCodeConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err)))
		return 1
	}
	reg, err := fetch.NewRegistry(
		fetch.TwoStage{Client: client},
		fetch.Direct{Client: client},
	)
	if err != nil {
		fmt.Fprintf(env.stderr, "初始化 fetcher registry 失败：%v\n", err)
		return 1
	}
	f, ok := reg.Get(eff.Resolver)
	if !ok {
		emitReport(env, fatalReport(eff.ZipPath, eff.OutputDir, domain.ErrCodeConfigInvalid,
			fmt.Sprintf("未知 resolver %q（可选：%s）", eff.Resolver, strings.Join(reg.Names(), ", "))))
		return 1
	}

	logger, closeLog := openLogger(env, eff)
	defer closeLog()

	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW, eff)
	}

	rr := run.ExecuteWithObserver(ctx, records, run.RunConfig{
		ZipPath:     eff.ZipPath,
		OutputDir:   eff.OutputDir,
		Spacing:     eff.Spacing,
		Limit:       eff.Limit,
		Concurrency: eff.Concurrency,
		Logger:      logger,
	}, f, obs)

	code := exitCode(rr)
	if fatalBeforeLaunch(rr) {
		emitReport(env, rr)
		return code
	}
	if err := writeReportFile(eff.OutputDir, rr); err != nil {
		fmt.Fprintf(env.stderr, "写入 %s 失败：%v\n", reportFile, err)
		emitReport(env, rr)
		return 1
	}

	emitReport(env, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return code
}

type runArgs struct {
	config.CLIArgs
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		name, val, hasVal := strings.Cut(a, "=")
		if !strings.HasPrefix(name, "--") {
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		}

		// 布尔参数：--dev / --yes，也接受 --dev=true|false。
		switch name {
		case "--dev", "--yes":
			b := true
			if hasVal {
				v, err := strconv.ParseBool(val)
				if err != nil {
					return runArgs{}, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, val)
				}
				b = v
			}
			if name == "--dev" {
				ra.Dev = b
			} else {
				ra.Yes = b
			}
			continue
		}

		if !hasVal {
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "--zip":
			ra.Zip = val
		case "--out":
			ra.Out = val
		case "--config":
			ra.ConfigPath = val
		case "--resolver":
			if strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("--resolver 不能为空")
			}
			ra.Resolver = val
		case "--spacing":
			d, err := parseSpacing(val)
			if err != nil {
				return runArgs{}, err
			}
			ra.Spacing, ra.SpacingSet = d, true
		case "--concurrency":
			n, err := strconv.Atoi(val)
			if err != nil {
				return runArgs{}, fmt.Errorf("--concurrency 必须是整数，实际是 %q", val)
			}
			ra.Concurrency, ra.ConcurrencySet = n, true
		case "--limit":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return runArgs{}, fmt.Errorf("--limit 必须是非负整数，实际是 %q", val)
			}
			ra.Limit, ra.LimitSet = n, true
		default:
			return runArgs{}, fmt.Errorf("未知参数 %q", name)
		}
	}

	return ra, nil
}

// parseSpacing 接受 Go duration（如 250ms、1s），纯数字按毫秒解释。
func parseSpacing(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("--spacing 不能为负数")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("--spacing 无效：%q（示例：1ms、250ms、1s）", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("--spacing 不能为负数")
	}
	return d, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  memdl run --zip <mydata.zip> --out <dir> [选项]

命令：
  run    从导出的 zip 中读取记忆清单并批量下载

使用 "memdl run --help" 查看详细说明。
`)
}

func printRunUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  memdl run --zip <mydata.zip> --out <dir> [选项]

参数：
  --zip          导出的 zip 文件路径（必填，可由 MEMDL_ZIP 或 memdl.json 提供）
  --out          输出目录（必填，可由 MEMDL_OUT 或 memdl.json 提供）
  --spacing      相邻两次启动下载的最小间隔（默认 1ms；纯数字按毫秒）
  --concurrency  同时在途的下载数上限（默认 0，不限制）
  --limit        只处理前 N 条记录
  --dev          开发者模式：只处理前 100 条（环境变量 DOWNLOADER_TEST_MODE 同样生效）
  --resolver     下载协议：two-stage|direct（默认 two-stage）
  --yes          跳过确认提示
  --config       配置文件路径（默认读取当前目录下的 memdl.json，可选）
  -h, --help     显示帮助
`)
}

func exitCode(rr domain.RunReport) int {
	if rr.Summary.Failed > 0 {
		return 1
	}
	return 0
}

func fatalBeforeLaunch(rr domain.RunReport) bool {
	return len(rr.Items) == 1 && rr.Items[0].Index < 0
}

func fatalReport(zipPath, outDir, code, msg string) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		ZipPath:    zipPath,
		OutputDir:  outDir,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Index:     -1,
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  msg,
		}},
		ErrorLog: []string{code + ": " + msg},
	}
	rr.Finalize()
	return rr
}

func emitReport(env cliEnv, rr domain.RunReport) {
	if env.stdoutTTY {
		fmt.Fprintln(env.stdout, rr.Text())
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）。
	b, err := sonic.ConfigStd.Marshal(rr)
	if err != nil {
		fmt.Fprintf(env.stderr, "序列化报告失败：%v\n", err)
	} else {
		_, _ = env.stdout.Write(append(b, '\n'))
	}
	fmt.Fprintln(env.stderr, rr.Text())
}

func writeReportFile(outDir string, rr domain.RunReport) error {
	b, err := sonic.ConfigStd.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(outDir, diag.StateDir), reportFile, b)
}

func openLogger(env cliEnv, eff config.EffectiveConfig) (*slog.Logger, func()) {
	f, err := diag.OpenLogFile(eff.OutputDir)
	if err != nil {
		fmt.Fprintf(env.stderr, "警告：无法打开日志文件，日志已禁用：%v\n", err)
		return diag.NewLogger(nil, eff.LogLevel, ""), func() {}
	}
	l := diag.NewLogger(f, eff.LogLevel, diag.NewRunID())
	l.Info("配置（生效）",
		"zip", eff.ZipPath,
		"out", eff.OutputDir,
		"resolver", eff.Resolver,
		"spacing", eff.Spacing.String(),
		"concurrency", eff.Concurrency,
		"limit", eff.Limit,
		"dev_mode", eff.DevMode,
		"proxy", eff.ProxyURL != "",
	)
	return l, func() { _ = f.Close() }
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(env cliEnv) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if env.stderrTTY {
		return env.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if env.stdoutTTY {
		return env.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutputDir, diag.StateDir, reportFile))
	fmt.Fprintf(w, "log: %s\n", filepath.Join(eff.OutputDir, diag.StateDir, diag.LogFile))
	fmt.Fprintf(w, "out: %s\n", eff.OutputDir)
}
