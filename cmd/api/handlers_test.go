package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/feldberlin/timething-web/pkg/config"
	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/pipeline"
	"github.com/feldberlin/timething-web/pkg/queue"
	"github.com/feldberlin/timething-web/pkg/store"
	"github.com/feldberlin/timething-web/pkg/upload"
)

func newTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs, err := media.NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := store.NewMemoryStore()

	app := &App{
		config: &config.Config{
			Server: config.ServerConfig{MaxUploadSize: 1 << 20},
		},
		store:   s,
		blobs:   blobs,
		uploads: upload.NewManager(s, blobs),
		queue:   queue.NewMemoryQueue(10),
		locks:   pipeline.NewRunLocks(),
	}
	return app, app.setupRouter()
}

func openSession(t *testing.T, router *gin.Engine, size int) string {
	t.Helper()
	body := fmt.Sprintf(`{"filename": "one.mp3", "content_type": "audio/mp3", "size_bytes": %d}`, size)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /upload = %d: %s", w.Code, w.Body.String())
	}
	var id string
	if err := json.Unmarshal(w.Body.Bytes(), &id); err != nil {
		t.Fatal(err)
	}
	return id
}

func putChunk(router *gin.Engine, id, contentRange string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/upload/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Range", contentRange)
	req.Header.Set("Content-Type", "audio/mp3")
	req.ContentLength = int64(len(body))
	router.ServeHTTP(w, req)
	return w
}

func TestUploadProtocol(t *testing.T) {
	_, router := newTestApp(t)
	id := openSession(t, router, 10)

	// 第一块：继续信号，回显接受的区间
	w := putChunk(router, id, "bytes=0-4/10", []byte("01234"))
	if w.Code != http.StatusPermanentRedirect {
		t.Fatalf("chunk 1 = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Range"); got != "bytes=0-4" {
		t.Errorf("Content-Range = %q", got)
	}

	// 续传探测：Range 指示已持久化区间
	w = putChunk(router, id, "bytes=*/10", nil)
	if w.Code != http.StatusPermanentRedirect {
		t.Fatalf("probe = %d", w.Code)
	}
	if got := w.Header().Get("Range"); got != "bytes=0-4" {
		t.Errorf("Range = %q", got)
	}

	// 末块：完成
	w = putChunk(router, id, "bytes=5-9/10", []byte("56789"))
	if w.Code != http.StatusOK {
		t.Fatalf("final chunk = %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadChunkErrors(t *testing.T) {
	_, router := newTestApp(t)
	id := openSession(t, router, 10)

	cases := []struct {
		name         string
		contentRange string
		body         []byte
		wantStatus   int
	}{
		{"range 语法错误", "bytes=0-4", []byte("01234"), http.StatusNotAcceptable},
		{"总量不一致", "bytes=0-4/99", []byte("01234"), http.StatusNotAcceptable},
		{"不连续", "bytes=5-9/10", []byte("56789"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := putChunk(router, id, tc.contentRange, tc.body)
		if w.Code != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.wantStatus)
		}
	}

	// 未知 id
	w := putChunk(router, "nope", "bytes=0-4/10", []byte("01234"))
	if w.Code != http.StatusNotFound {
		t.Errorf("未知 id: status = %d", w.Code)
	}
}

func TestMediaRange(t *testing.T) {
	_, router := newTestApp(t)
	id := openSession(t, router, 10)
	if w := putChunk(router, id, "bytes=0-9/10", []byte("0123456789")); w.Code != http.StatusOK {
		t.Fatalf("upload = %d", w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/media/"+id, nil)
	req.Header.Set("Range", "bytes=2-5")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", got)
	}
	if w.Body.String() != "2345" {
		t.Errorf("body = %q", w.Body.String())
	}

	// 越界的 range
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/media/"+id, nil)
	req.Header.Set("Range", "bytes=5-99")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestParseByteRange(t *testing.T) {
	cases := []struct {
		header     string
		start, end int64
		wantErr    bool
	}{
		{"bytes=0-4", 0, 4, false},
		{"bytes=2-", 2, 9, false},
		{"bytes=-", 0, 9, false},
		{"bytes=5-3", 0, 0, true},
		{"bytes=0-10", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tc := range cases {
		start, end, err := parseByteRange(tc.header, 10)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: 应报错", tc.header)
			}
			continue
		}
		if err != nil || start != tc.start || end != tc.end {
			t.Errorf("%q: got (%d, %d, %v)", tc.header, start, end, err)
		}
	}
}
