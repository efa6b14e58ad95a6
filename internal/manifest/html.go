package manifest

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/memdl/internal/domain"
)

var reDownloadCall = regexp.MustCompile(`downloadMemories\(\s*['"]([^'"]+)['"]`)

// ParseHTML 解析 memories_history.html 的表格。
//
// 每个数据行前两列是 <td>日期</td><td>类型</td>，下载入口在其后的任意一列
// （通常是 <a onclick="downloadMemories('...')">；导出可能插入地点等额外列）。
// 表头行（th）与列数不足的行会被跳过。
func ParseHTML(b []byte) ([]domain.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, &Error{Code: domain.ErrCodeManifestInvalid, Path: EntryHTML, Index: -1, Msg: "HTML 解析失败", Err: err}
	}

	out := make([]domain.Record, 0, 64)
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 3 {
			return
		}
		date := strings.TrimSpace(tds.Eq(0).Text())
		kind := strings.TrimSpace(tds.Eq(1).Text())
		link := extractLink(tds.Slice(2, goquery.ToEnd))
		out = append(out, toRecord(date, kind, link))
	})

	if err := Validate(out, EntryHTML); err != nil {
		return nil, err
	}
	return out, nil
}

// extractLink 在给定单元格中查找下载链接：优先 downloadMemories(...)，其次 http(s) href。
func extractLink(cells *goquery.Selection) string {
	anchors := cells.Find("a")

	var link string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if oc, ok := a.Attr("onclick"); ok {
			if m := reDownloadCall.FindStringSubmatch(oc); m != nil {
				link = m[1]
				return false
			}
		}
		return true
	})
	if link != "" {
		return link
	}

	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href, ok := a.Attr("href"); ok {
			href = strings.TrimSpace(href)
			if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
				link = href
				return false
			}
		}
		return true
	})
	return link
}
