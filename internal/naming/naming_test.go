package naming

import (
	"path/filepath"
	"testing"

	"github.com/John-Robertt/memdl/internal/domain"
)

func TestResolve_ReplacesColonsAndPicksExtension(t *testing.T) {
	dir := filepath.Join("out", "memories")
	cases := []struct {
		rec  domain.Record
		want string
	}{
		{domain.Record{CapturedAt: "2023:01:01", Kind: domain.KindImage}, "Memory 2023-01-01.jpg"},
		{domain.Record{CapturedAt: "2023:01:02", Kind: domain.KindVideo}, "Memory 2023-01-02.mp4"},
		{domain.Record{CapturedAt: "2023:01:03", Kind: domain.KindUnknown}, "Memory 2023-01-03.unknown"},
		{domain.Record{CapturedAt: "2022-12-31 23:59:59 UTC", Kind: domain.KindImage}, "Memory 2022-12-31 23-59-59 UTC.jpg"},
	}
	for _, c := range cases {
		got := Resolve(c.rec, dir)
		if got != filepath.Join(dir, c.want) {
			t.Fatalf("Resolve(%+v)=%q want=%q", c.rec, got, filepath.Join(dir, c.want))
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	rec := domain.Record{CapturedAt: "2023:05:06 07:08:09", Kind: domain.KindVideo, Link: "https://x.test/a"}
	a := Resolve(rec, "out")
	b := Resolve(rec, "out")
	if a != b {
		t.Fatalf("两次调用结果不一致：%q vs %q", a, b)
	}
}

func TestResolve_KindsDoNotCollide(t *testing.T) {
	img := domain.Record{CapturedAt: "2023:01:01", Kind: domain.KindImage}
	vid := domain.Record{CapturedAt: "2023:01:01", Kind: domain.KindVideo}
	if Resolve(img, "out") == Resolve(vid, "out") {
		t.Fatalf("不同 kind 不应映射到同一路径")
	}
}
