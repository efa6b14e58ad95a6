// Package manifest 从导出 zip 中读取记忆清单。
//
// 数据源优先级：
//  1. json/memories_history.json（{"Saved Media": [...]}）
//  2. html/memories_history.html（较新的导出只带 HTML 表格）
package manifest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/bytedance/sonic"

	"github.com/John-Robertt/memdl/internal/domain"
)

const (
	EntryJSON = "json/memories_history.json"
	EntryHTML = "html/memories_history.html"
)

// Error 是 manifest 阶段的可追溯错误。
// Code 为 domain.ErrCodeIOFailed（打不开 zip）或 domain.ErrCodeManifestInvalid（内容问题）。
type Error struct {
	Code  string
	Path  string
	Index int // 出错记录的下标；-1 表示与具体记录无关
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Index >= 0 {
		s = fmt.Sprintf("第 %d 条记录：%s", e.Index, s)
	}
	if e.Path != "" {
		s = fmt.Sprintf("%s（%s）", s, e.Path)
	}
	if e.Err != nil {
		s += "：" + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Code 提取 err 链上的 manifest 错误码；非 manifest 错误返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

type savedMedia struct {
	Date         string `json:"Date"`
	MediaType    string `json:"Media Type"`
	DownloadLink string `json:"Download Link"`
}

type historyFile struct {
	SavedMedia []savedMedia `json:"Saved Media"`
}

// Load 打开 zipPath 并返回按 manifest 顺序排列的记录。
func Load(zipPath string) ([]domain.Record, error) {
	f, err := os.Open(zipPath)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, &Error{Code: domain.ErrCodeIOFailed, Path: zipPath, Index: -1, Msg: "zip 文件不存在"}
		case errors.Is(err, fs.ErrPermission):
			return nil, &Error{Code: domain.ErrCodeIOFailed, Path: zipPath, Index: -1, Msg: "没有读取 zip 文件的权限"}
		default:
			return nil, &Error{Code: domain.ErrCodeIOFailed, Path: zipPath, Index: -1, Msg: "打开 zip 文件失败", Err: err}
		}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeIOFailed, Path: zipPath, Index: -1, Msg: "读取 zip 文件信息失败", Err: err}
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeManifestInvalid, Path: zipPath, Index: -1, Msg: "无法解析 zip 文件", Err: err}
	}
	return LoadArchive(zr)
}

// LoadArchive 从已打开的 zip 中读取清单。JSON 优先，缺失时回退到 HTML。
func LoadArchive(zr *zip.Reader) ([]domain.Record, error) {
	if b, ok, err := readEntry(zr, EntryJSON); err != nil {
		return nil, err
	} else if ok {
		return ParseJSON(b)
	}
	if b, ok, err := readEntry(zr, EntryHTML); err != nil {
		return nil, err
	} else if ok {
		return ParseHTML(b)
	}
	return nil, &Error{Code: domain.ErrCodeManifestInvalid, Index: -1, Msg: fmt.Sprintf("zip 中缺少 %s", EntryJSON)}
}

func readEntry(zr *zip.Reader, name string) ([]byte, bool, error) {
	rc, err := zr.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &Error{Code: domain.ErrCodeManifestInvalid, Path: name, Index: -1, Msg: "打开 zip 条目失败", Err: err}
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, &Error{Code: domain.ErrCodeManifestInvalid, Path: name, Index: -1, Msg: "读取 zip 条目失败", Err: err}
	}
	return b, true, nil
}

// ParseJSON 解码 memories_history.json 的内容。
func ParseJSON(b []byte) ([]domain.Record, error) {
	var h historyFile
	if err := sonic.Unmarshal(b, &h); err != nil {
		return nil, &Error{Code: domain.ErrCodeManifestInvalid, Path: EntryJSON, Index: -1, Msg: "JSON 反序列化失败", Err: err}
	}
	if h.SavedMedia == nil {
		return nil, &Error{Code: domain.ErrCodeManifestInvalid, Path: EntryJSON, Index: -1, Msg: `缺少 "Saved Media" 字段`}
	}
	out := make([]domain.Record, 0, len(h.SavedMedia))
	for _, m := range h.SavedMedia {
		out = append(out, toRecord(m.Date, m.MediaType, m.DownloadLink))
	}
	if err := Validate(out, EntryJSON); err != nil {
		return nil, err
	}
	return out, nil
}

func toRecord(date, kind, link string) domain.Record {
	return domain.Record{
		CapturedAt: date,
		Kind:       domain.ParseMediaKind(kind),
		RawKind:    kind,
		Link:       link,
	}
}

// Validate 检查每条记录的必填字段。src 仅用于错误信息。
func Validate(recs []domain.Record, src string) error {
	for i, r := range recs {
		switch {
		case r.CapturedAt == "":
			return &Error{Code: domain.ErrCodeManifestInvalid, Path: src, Index: i, Msg: "Date 为空"}
		case r.RawKind == "":
			return &Error{Code: domain.ErrCodeManifestInvalid, Path: src, Index: i, Msg: "Media Type 为空"}
		case r.Link == "":
			return &Error{Code: domain.ErrCodeManifestInvalid, Path: src, Index: i, Msg: "Download Link 为空"}
		}
	}
	return nil
}
