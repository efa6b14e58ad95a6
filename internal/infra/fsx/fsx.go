package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename/link 失败。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层把它映射为 error_code=write_failed。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// Exists 判断 path 是否已存在（任意类型）。
// Lstat 的其他错误（如父路径不是目录）按不存在处理，交给写入阶段报错。
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// WriteFileAtomicReplace 在 dir 下原子写入 name，目标已存在则覆盖。
// 用于 report.json 等内部状态文件。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	tmpName, err := writeTemp(dir, name, data, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)

	if err := renameFunc(tmpName, filepath.Join(dir, name)); err != nil {
		return err
	}
	_ = syncDirBestEffort(dir)
	return nil
}

// WriteFileAtomicNoOverwrite 在 dir 下原子写入 name，目标已存在时返回 os.ErrExist。
//
// - 临时文件与目标同目录，保证发布动作是同一文件系统内的原子操作
// - 发布优先用 link（目标存在时由内核拒绝，不存在检查与写入之间的竞态）
// - 文件系统不支持硬链接时退化为 Lstat + rename
// - 任何失败都不会留下部分写入的目标文件
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	if err := checkTarget(dst); err != nil {
		return err
	}

	tmpName, err := writeTemp(dir, name, data, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)

	if err := linkFunc(tmpName, dst); err == nil {
		_ = syncDirBestEffort(dir)
		return nil
	} else if errors.Is(err, os.ErrExist) {
		return os.ErrExist
	}

	if err := checkTarget(dst); err != nil {
		return err
	}
	if err := renameFunc(tmpName, dst); err != nil {
		return err
	}
	_ = syncDirBestEffort(dir)
	return nil
}

func checkTarget(dst string) error {
	fi, err := os.Lstat(dst)
	if err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
		return os.ErrExist
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// writeTemp 在 dir 下写出完整的临时文件并返回其路径。
// 前缀带 '.'，中断时残留的临时文件不会被误认为媒体文件。
func writeTemp(dir, name string, data []byte, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeAll(tmp, data); err != nil {
		return "", err
	}
	if err := tmp.Chmod(perm); err != nil && runtime.GOOS != "windows" {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	ok = true
	return tmpName, nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
