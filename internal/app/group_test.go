package app

import (
	"path/filepath"
	"testing"

	"github.com/John-Robertt/memdl/internal/domain"
)

func TestGroupByPath_MergeSameDate(t *testing.T) {
	recs := []domain.Record{
		{CapturedAt: "2020-01-02 10:00:00 UTC", Kind: domain.KindImage},
		{CapturedAt: "2020-01-01 10:00:00 UTC", Kind: domain.KindImage},
		{CapturedAt: "2020-01-02 10:00:00 UTC", Kind: domain.KindImage},
	}

	groups := GroupByPath(recs, "out")
	if len(groups) != 2 {
		t.Fatalf("期望 2 个分组，实际 %d", len(groups))
	}
	// 按路径排序：01-01 在 01-02 之前。
	if groups[0].Path != filepath.Join("out", "Memory 2020-01-01 10-00-00 UTC.jpg") {
		t.Fatalf("分组排序不稳定：%v", groups)
	}
	if len(groups[1].Record) != 2 || groups[1].Record[0] != 0 || groups[1].Record[1] != 2 {
		t.Fatalf("组内应保持 manifest 顺序：%v", groups[1].Record)
	}

	cs := Collisions(groups)
	if len(cs) != 1 || cs[0].Path != groups[1].Path {
		t.Fatalf("冲突分组不符合预期：%v", cs)
	}
}

func TestGroupByPath_SameDateDifferentKind(t *testing.T) {
	recs := []domain.Record{
		{CapturedAt: "2020-01-01 10:00:00 UTC", Kind: domain.KindImage},
		{CapturedAt: "2020-01-01 10:00:00 UTC", Kind: domain.KindVideo},
	}

	groups := GroupByPath(recs, "out")
	if len(groups) != 2 {
		t.Fatalf("不同扩展名不应冲突：%v", groups)
	}
	if len(Collisions(groups)) != 0 {
		t.Fatalf("不期望冲突")
	}
	names := BaseNames(groups)
	if _, ok := names["Memory 2020-01-01 10-00-00 UTC.mp4"]; !ok {
		t.Fatalf("BaseNames 缺少 mp4：%v", names)
	}
}
