package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/memdl/internal/domain"
)

// newExportServer 模拟导出包的两段式接口：/link/<id> 返回 /asset/<id> 的绝对 URL。
// 两个阶段都要求空 body；第一阶段还要求显式的 Content-Length: 0，否则返回 400。
func newExportServer(t *testing.T, asset []byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 || r.ContentLength > 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/link/"):
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if r.Header.Get("Content-Length") != "0" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			id := strings.TrimPrefix(r.URL.Path, "/link/")
			_, _ = w.Write([]byte(srv.URL + "/asset/" + id + "\n"))
		case strings.HasPrefix(r.URL.Path, "/asset/"):
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			_, _ = w.Write(asset)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetchCode(t *testing.T, err error) string {
	t.Helper()
	var fe *Error
	require.True(t, errors.As(err, &fe), "期望 *fetch.Error，实际 %T %v", err, err)
	return fe.Code
}

func TestTwoStage_ReturnsAssetBytes(t *testing.T) {
	want := []byte("\xff\xd8\xffjpeg-bytes")
	srv := newExportServer(t, want)

	got, err := TwoStage{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/link/1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTwoStage_EmptyBodyOnBothStages(t *testing.T) {
	type seen struct {
		method, contentLength, contentType string
		body                               int
	}
	var (
		mu  sync.Mutex
		got []seen
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, seen{r.Method, r.Header.Get("Content-Length"), r.Header.Get("Content-Type"), len(b)})
		mu.Unlock()
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(srv.URL + "/asset"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := TwoStage{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/link/1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, seen{http.MethodPost, "0", "application/x-www-form-urlencoded", 0}, got[0])
	assert.Equal(t, http.MethodGet, got[1].method)
	assert.Equal(t, 0, got[1].body)
	// net/http 不会为 GET 发送 Content-Length: 0；空 body 由 http.NoBody 保证。
	assert.Empty(t, got[1].contentLength)
}

func TestTwoStage_ResolveNon2xx_RequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := TwoStage{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/link/1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeRequestFailed, fetchCode(t, err))

	var hs *HTTPStatusError
	require.True(t, errors.As(err, &hs))
	assert.Equal(t, http.StatusInternalServerError, hs.StatusCode)
}

func TestTwoStage_ResolveTransportError_RequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	link := srv.URL + "/link/1"
	srv.Close()

	_, err := TwoStage{Client: &http.Client{Timeout: time.Second}}.Fetch(context.Background(), link)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeRequestFailed, fetchCode(t, err))
}

func TestTwoStage_ResolveBodyNotURL_ResolutionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a link</html>"))
	}))
	defer srv.Close()

	_, err := TwoStage{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/link/1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeResolutionFailed, fetchCode(t, err))
}

func TestTwoStage_AssetTimeout_TransferFailed(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(srv.URL + "/slow"))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := srv.Client()
	c.Timeout = 100 * time.Millisecond

	_, err := TwoStage{Client: c}.Fetch(context.Background(), srv.URL+"/link/1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeTransferFailed, fetchCode(t, err))
	assert.Contains(t, Humanize(err), "超时")
}

func TestTwoStage_AssetNotFound_TransferFailed(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(srv.URL + "/gone"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := TwoStage{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/link/1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeTransferFailed, fetchCode(t, err))
	assert.Contains(t, Humanize(err), "404")
}

func TestDirect_SingleStage(t *testing.T) {
	want := []byte("mp4-bytes")
	srv := newExportServer(t, want)

	got, err := Direct{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/asset/9")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFetch_NilClient(t *testing.T) {
	_, err := TwoStage{}.Fetch(context.Background(), "http://example.test/x")
	assert.Equal(t, domain.ErrCodeRequestFailed, fetchCode(t, err))

	_, err = Direct{}.Fetch(context.Background(), "http://example.test/x")
	assert.Equal(t, domain.ErrCodeTransferFailed, fetchCode(t, err))
}
