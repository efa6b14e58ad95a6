package fetch

import (
	"fmt"
	"sort"
	"strings"
)

const (
	NameTwoStage = "two-stage"
	NameDirect   = "direct"
)

// Registry 是 fetcher 的只读注册表（按 name 索引）。
// 链接解析协议属于导出格式的细节；通过注册表切换，orchestrator 无需改动。
type Registry struct {
	byName map[string]Fetcher
}

func NewRegistry(fetchers ...Fetcher) (Registry, error) {
	byName := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		if f == nil {
			return Registry{}, fmt.Errorf("fetcher 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(f.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("fetcher.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 fetcher：%q", name)
		}
		byName[name] = f
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Fetcher, bool) {
	if r.byName == nil {
		return nil, false
	}
	f, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Names 返回已注册的名称（已排序），用于帮助与错误提示。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
