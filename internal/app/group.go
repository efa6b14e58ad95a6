package app

import (
	"path/filepath"
	"sort"

	"github.com/John-Robertt/memdl/internal/domain"
	"github.com/John-Robertt/memdl/internal/naming"
)

// PathGroup 是解析到同一落盘路径的一组记录（只存 record index）。
type PathGroup struct {
	Path   string
	Record []int
}

// GroupByPath 把记录按目标路径分组。
//
// - groups 稳定排序：按 Path 字典序
// - group 内 Record 保持 manifest 顺序
//
// 同一组内只有最先完成的一条会被写入，其余记为 already_exists。
func GroupByPath(records []domain.Record, dir string) []PathGroup {
	index := make(map[string]int, len(records))
	groups := make([]PathGroup, 0, len(records))

	for i := range records {
		p := naming.Resolve(records[i], dir)
		if gi, ok := index[p]; ok {
			groups[gi].Record = append(groups[gi].Record, i)
			continue
		}
		index[p] = len(groups)
		groups = append(groups, PathGroup{Path: p, Record: []int{i}})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Path < groups[j].Path })
	return groups
}

// Collisions 只返回包含多条记录的分组。
func Collisions(groups []PathGroup) []PathGroup {
	out := make([]PathGroup, 0)
	for _, g := range groups {
		if len(g.Record) > 1 {
			out = append(out, g)
		}
	}
	return out
}

// BaseNames 返回分组的文件名集合（不含目录），供 planner 与目录现状比对。
func BaseNames(groups []PathGroup) map[string]int {
	out := make(map[string]int, len(groups))
	for i, g := range groups {
		out[filepath.Base(g.Path)] = i
	}
	return out
}
