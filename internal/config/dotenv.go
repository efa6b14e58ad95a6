package config

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv 读取 <dir>/.env 到进程环境（不覆盖已存在的变量）。
// 文件不存在不算错误。
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &Error{Code: ErrCodeInvalid, Path: filepath.Join(dir, ".env"), Err: err}
}
