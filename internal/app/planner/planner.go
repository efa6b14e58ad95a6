package planner

import (
	"os"

	"github.com/John-Robertt/memdl/internal/app"
	"github.com/John-Robertt/memdl/internal/domain"
)

// Summary 是确认前展示给用户的预估（只读目录，不做任何写入/网络请求）。
type Summary struct {
	Total      int
	Existing   int // 目标文件已存在，将被跳过
	Pending    int // 需要下载
	Collisions []app.PathGroup
}

// Duplicates 是因文件名冲突而必然被跳过的记录数。
func (s Summary) Duplicates() int {
	n := 0
	for _, g := range s.Collisions {
		n += len(g.Record) - 1
	}
	return n
}

// ReadExisting 读取 dir 下已有的文件名（只做 ReadDir，不读文件内容）。
// 若 dir 不存在，返回空集合且不报错。
func ReadExisting(dir string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, e := range entries {
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

// Plan 基于记录与目录现状生成确定性的预估。
// records 应已按 limit 截断，与随后交给 run 的记录一致。
func Plan(records []domain.Record, dir string) (Summary, error) {
	existing, err := ReadExisting(dir)
	if err != nil {
		return Summary{}, err
	}

	groups := app.GroupByPath(records, dir)
	s := Summary{
		Total:      len(records),
		Collisions: app.Collisions(groups),
	}
	for name, gi := range app.BaseNames(groups) {
		if _, ok := existing[name]; ok {
			s.Existing += len(groups[gi].Record)
			continue
		}
		// 同组只有一条会真正下载。
		s.Pending++
	}
	return s, nil
}
