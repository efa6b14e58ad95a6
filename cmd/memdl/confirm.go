package main

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/memdl/internal/app/planner"
)

// confirm 展示本次运行的规模与目标目录，并读取一行回答。
// 只有 y/Y 视为确认；其他任何输入（包括 EOF）都视为取消。
func confirm(in io.Reader, w io.Writer, outDir string, s planner.Summary) bool {
	fmt.Fprintf(w, "共 %d 条记忆，将下载到：%s\n", s.Total, outDir)
	fmt.Fprintf(w, "  待下载: %d  已存在（跳过）: %d\n", s.Pending, s.Existing)
	if len(s.Collisions) > 0 {
		fmt.Fprintf(w, "  文件名冲突: %d 组（%d 条记录会被记为 already_exists）\n", len(s.Collisions), s.Duplicates())
		for i, g := range s.Collisions {
			if i >= 3 {
				fmt.Fprintf(w, "    ...\n")
				break
			}
			fmt.Fprintf(w, "    %s <- %v\n", filepath.Base(g.Path), g.Record)
		}
	}
	fmt.Fprint(w, "确定继续吗？[Y/N] ")

	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}
