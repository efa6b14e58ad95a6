package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingField 表示缺少必填字段（zip/out）。
	ErrCodeMissingField = "config_missing_field"
)

const (
	// FileName 是 cwd 下可选配置文件的固定文件名。
	FileName = "memdl.json"

	DefaultSpacing    = time.Millisecond
	DefaultResolver   = "two-stage"
	DefaultTimeoutSec = 60
	DefaultLogLevel   = "info"

	// DevModeLimit 是开发者模式下最多处理的记录数。
	DevModeLimit = 100
	// MaxConcurrency 是 concurrency 的上限（0 表示不限制）。
	MaxConcurrency = 256
)

const (
	EnvTestMode    = "DOWNLOADER_TEST_MODE"
	EnvZip         = "MEMDL_ZIP"
	EnvOut         = "MEMDL_OUT"
	EnvSpacingMS   = "MEMDL_SPACING_MS"
	EnvConcurrency = "MEMDL_CONCURRENCY"
	EnvProxyURL    = "MEMDL_PROXY_URL"
	EnvLogLevel    = "MEMDL_LOG_LEVEL"
)

// DevModeWarning 是开发者模式被环境变量强制开启时打印的提示。
const DevModeWarning = "警告：开发者模式已开启，只会下载前 100 条记忆。"

// CLIArgs 是 CLI 暴露的参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --concurrency 0 必须能覆盖 config.concurrency=8。
type CLIArgs struct {
	Zip string
	Out string

	Spacing    time.Duration
	SpacingSet bool

	Concurrency    int
	ConcurrencySet bool

	Limit    int
	LimitSet bool

	Dev bool

	Resolver string

	Yes bool

	// ConfigPath 非空时必须存在；为空时尝试 <cwd>/memdl.json（可选）。
	ConfigPath string
}

// FileConfig 对应 memdl.json 的解析结构。
type FileConfig struct {
	Zip         string       `json:"zip"`
	Out         string       `json:"out"`
	SpacingMS   *int         `json:"spacing_ms"`
	Concurrency *int         `json:"concurrency"`
	Limit       int          `json:"limit"`
	DevMode     bool         `json:"dev_mode"`
	Resolver    string       `json:"resolver"`
	Proxy       *ProxyConfig `json:"proxy"`
	TimeoutSec  int          `json:"timeout_sec"`
	LogLevel    string       `json:"log_level"`
	Yes         bool         `json:"yes"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	ZipPath   string
	OutputDir string

	Spacing     time.Duration
	Concurrency int
	Limit       int
	DevMode     bool

	Resolver string
	ProxyURL string
	Timeout  time.Duration
	LogLevel string

	Yes bool

	// ConfigFile 是实际读取到的配置文件路径；未读取时为空。
	ConfigFile string
	// Warnings 需要由 CLI 原样打印给用户。
	Warnings []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingField:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件与环境变量，并与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 默认值。
// 例外：DOWNLOADER_TEST_MODE 只要存在就强制开启开发者模式（即使 CLI 未指定 --dev）。
//
// lookupEnv 为 nil 时使用 os.LookupEnv。
func LoadEffective(cwd string, cli CLIArgs, lookupEnv func(string) (string, bool)) (EffectiveConfig, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if required && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if !exists {
		cfgPath = ""
	}

	return merge(cwdAbs, cli, fc, cfgPath, lookupEnv)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string, lookupEnv func(string) (string, bool)) (EffectiveConfig, error) {
	getenv := func(k string) string {
		v, _ := lookupEnv(k)
		return v
	}
	invalid := func(err error) error { return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err} }

	eff := EffectiveConfig{
		Spacing:    DefaultSpacing,
		Resolver:   DefaultResolver,
		Timeout:    DefaultTimeoutSec * time.Second,
		LogLevel:   DefaultLogLevel,
		ConfigFile: cfgPath,
	}

	// zip/out：CLI > env > config
	eff.ZipPath = firstNonEmpty(cli.Zip, getenv(EnvZip), fc.Zip)
	eff.OutputDir = firstNonEmpty(cli.Out, getenv(EnvOut), fc.Out)
	if eff.ZipPath == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingField, Path: cfgPath, Err: errors.New("缺少 zip（--zip / MEMDL_ZIP / memdl.json:zip）")}
	}
	if eff.OutputDir == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingField, Path: cfgPath, Err: errors.New("缺少 out（--out / MEMDL_OUT / memdl.json:out）")}
	}
	eff.ZipPath = absCleanFrom(cwdAbs, eff.ZipPath)
	eff.OutputDir = absCleanFrom(cwdAbs, eff.OutputDir)

	// spacing：CLI > env > config > 默认 1ms
	switch {
	case cli.SpacingSet:
		eff.Spacing = cli.Spacing
	case strings.TrimSpace(getenv(EnvSpacingMS)) != "":
		ms, err := strconv.Atoi(strings.TrimSpace(getenv(EnvSpacingMS)))
		if err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("%s 无效：%w", EnvSpacingMS, err))
		}
		eff.Spacing = time.Duration(ms) * time.Millisecond
	case fc.SpacingMS != nil:
		eff.Spacing = time.Duration(*fc.SpacingMS) * time.Millisecond
	}
	if eff.Spacing < 0 {
		return EffectiveConfig{}, invalid(fmt.Errorf("spacing 不能为负数：%s", eff.Spacing))
	}

	// concurrency：CLI > env > config > 默认 0（不限制）；超出截断到 [0, 256]
	switch {
	case cli.ConcurrencySet:
		eff.Concurrency = cli.Concurrency
	case strings.TrimSpace(getenv(EnvConcurrency)) != "":
		n, err := strconv.Atoi(strings.TrimSpace(getenv(EnvConcurrency)))
		if err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("%s 无效：%w", EnvConcurrency, err))
		}
		eff.Concurrency = n
	case fc.Concurrency != nil:
		eff.Concurrency = *fc.Concurrency
	}
	if eff.Concurrency < 0 {
		eff.Concurrency = 0
	}
	if eff.Concurrency > MaxConcurrency {
		eff.Concurrency = MaxConcurrency
	}

	// limit / dev_mode
	eff.Limit = fc.Limit
	if cli.LimitSet {
		eff.Limit = cli.Limit
	}
	if eff.Limit < 0 {
		return EffectiveConfig{}, invalid(fmt.Errorf("limit 不能为负数：%d", eff.Limit))
	}
	eff.DevMode = cli.Dev || fc.DevMode
	if _, ok := lookupEnv(EnvTestMode); ok {
		eff.DevMode = true
		eff.Warnings = append(eff.Warnings, DevModeWarning)
	}
	if eff.DevMode && (eff.Limit == 0 || eff.Limit > DevModeLimit) {
		eff.Limit = DevModeLimit
	}

	// resolver：CLI > config > 默认
	eff.Resolver = strings.ToLower(strings.TrimSpace(firstNonEmpty(cli.Resolver, fc.Resolver, DefaultResolver)))
	if err := validateResolver(eff.Resolver); err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	// proxy：env > config
	proxyURL := strings.TrimSpace(getenv(EnvProxyURL))
	if proxyURL == "" && fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid(fmt.Errorf("proxy.url 缺少 scheme 或 host：%q", proxyURL))
		}
	}
	eff.ProxyURL = proxyURL

	if fc.TimeoutSec < 0 {
		return EffectiveConfig{}, invalid(fmt.Errorf("timeout_sec 不能为负数：%d", fc.TimeoutSec))
	}
	if fc.TimeoutSec > 0 {
		eff.Timeout = time.Duration(fc.TimeoutSec) * time.Second
	}

	eff.LogLevel = strings.ToLower(firstNonEmpty(getenv(EnvLogLevel), fc.LogLevel, DefaultLogLevel))
	switch eff.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, invalid(fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", eff.LogLevel))
	}

	eff.Yes = cli.Yes || fc.Yes
	return eff, nil
}

func validateResolver(r string) error {
	switch r {
	case "two-stage", "direct":
		return nil
	default:
		return fmt.Errorf("resolver 只能是 two-stage 或 direct，实际是 %q", r)
	}
}

func firstNonEmpty(xs ...string) string {
	for _, x := range xs {
		if s := strings.TrimSpace(x); s != "" {
			return s
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
