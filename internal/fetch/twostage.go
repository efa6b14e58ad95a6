package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/memdl/internal/domain"
)

// maxLinkBody 限制第一阶段响应体大小：它只应是一个 URL。
const maxLinkBody = 64 << 10

// TwoStage 实现导出包的两段式下载协议：
//
//  1. POST link（空 body）：2xx 响应体是真实资源 URL，而不是资源本身
//  2. GET 该 URL（空 body）：2xx 响应体是资源字节
//
// 分类：
// - request_failed：第一阶段传输失败或非 2xx
// - resolution_failed：第一阶段响应体读取失败，或不是合法的 http(s) URL
// - transfer_failed：第二阶段任意失败（传输/非 2xx/超时/读 body）
type TwoStage struct {
	Client *http.Client
}

func (TwoStage) Name() string { return NameTwoStage }

func (f TwoStage) Fetch(ctx context.Context, link string) ([]byte, error) {
	if f.Client == nil {
		return nil, &Error{Stage: "resolve", Code: domain.ErrCodeRequestFailed, Err: errors.New("http client 不能为空")}
	}

	assetURL, err := f.resolve(ctx, link)
	if err != nil {
		return nil, err
	}

	b, err := get(ctx, f.Client, assetURL)
	if err != nil {
		return nil, &Error{Stage: "transfer", Code: domain.ErrCodeTransferFailed, Err: err}
	}
	return b, nil
}

func (f TwoStage) resolve(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, link, http.NoBody)
	if err != nil {
		return "", &Error{Stage: "resolve", Code: domain.ErrCodeRequestFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", &Error{Stage: "resolve", Code: domain.ErrCodeRequestFailed, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Stage: "resolve", Code: domain.ErrCodeRequestFailed, Err: &HTTPStatusError{URL: link, StatusCode: resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLinkBody))
	if err != nil {
		return "", &Error{Stage: "resolve", Code: domain.ErrCodeResolutionFailed, Err: err}
	}
	u := strings.TrimSpace(string(body))
	if err := validateAssetURL(u); err != nil {
		return "", &Error{Stage: "resolve", Code: domain.ErrCodeResolutionFailed, Err: err}
	}
	return u, nil
}

// Direct 是单段协议：link 本身就是资源地址。
type Direct struct {
	Client *http.Client
}

func (Direct) Name() string { return NameDirect }

func (f Direct) Fetch(ctx context.Context, link string) ([]byte, error) {
	if f.Client == nil {
		return nil, &Error{Stage: "transfer", Code: domain.ErrCodeTransferFailed, Err: errors.New("http client 不能为空")}
	}
	b, err := get(ctx, f.Client, link)
	if err != nil {
		return nil, &Error{Stage: "transfer", Code: domain.ErrCodeTransferFailed, Err: err}
	}
	return b, nil
}

func get(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	// 空 body 由 http.NoBody 表达；net/http 不会为 GET 写出 Content-Length: 0。
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func validateAssetURL(raw string) error {
	if raw == "" {
		return errors.New("第一阶段响应体为空")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("第一阶段响应体不是合法 URL：%w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("第一阶段响应体不是 http/https URL（长度 %d）", len(raw))
	}
	return nil
}
