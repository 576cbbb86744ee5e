package upload

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/store"
)

func newManager(t *testing.T) (*Manager, *media.BlobStore, store.Store) {
	t.Helper()
	blobs, err := media.NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := store.NewMemoryStore()
	return NewManager(s, blobs), blobs, s
}

func open(t *testing.T, m *Manager, size int64) string {
	t.Helper()
	id, err := m.Open(models.UploadInfo{
		Filename:    "file.name",
		ContentType: "audio/mp3",
		SizeBytes:   size,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func chunk(contentRange string, body string) ChunkRequest {
	return ChunkRequest{
		ContentRange:  contentRange,
		ContentType:   "audio/mp3",
		ContentLength: int64(len(body)),
		Body:          []byte(body),
	}
}

func TestUploadContiguousChunks(t *testing.T) {
	m, blobs, _ := newManager(t)
	id := open(t, m, 15)

	reply, err := m.PutChunk(id, chunk("bytes 0-9/15", "0123456789"))
	if err != nil {
		t.Fatalf("第一块: %v", err)
	}
	if reply.Complete || reply.Start != 0 || reply.End != 9 {
		t.Errorf("第一块回复错误: %+v", reply)
	}

	reply, err = m.PutChunk(id, chunk("bytes 10-14/15", "01234"))
	if err != nil {
		t.Fatalf("最后一块: %v", err)
	}
	if !reply.Complete {
		t.Errorf("最后一块应为 Complete: %+v", reply)
	}

	// 重建的文件等于分块顺序拼接
	var buf bytes.Buffer
	if err := blobs.ReadRange(id, 0, 14, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "012345678901234" {
		t.Errorf("文件内容 = %q", buf.String())
	}
}

func TestUploadNonContiguousRejected(t *testing.T) {
	m, blobs, _ := newManager(t)
	id := open(t, m, 15)

	if _, err := m.PutChunk(id, chunk("bytes 0-9/15", "0123456789")); err != nil {
		t.Fatal(err)
	}

	// 跳块
	_, err := m.PutChunk(id, chunk("bytes 12-14/15", "234"))
	ve, ok := err.(*ValidationError)
	if !ok || ve.Status != http.StatusBadRequest {
		t.Fatalf("want 400 ValidationError, got %v", err)
	}

	// 重复块
	if _, err := m.PutChunk(id, chunk("bytes 0-9/15", "0123456789")); err == nil {
		t.Fatal("重复块应被拒绝")
	}

	// 存储不应被改变
	if n, _ := blobs.Size(id); n != 10 {
		t.Errorf("拒绝后 size = %d, want 10", n)
	}
}

func TestUploadResumeQuery(t *testing.T) {
	m, _, _ := newManager(t)
	id := open(t, m, 16)

	if _, err := m.PutChunk(id, chunk("bytes 0-9/16", "0123456789")); err != nil {
		t.Fatal(err)
	}

	reply, err := m.PutChunk(id, ChunkRequest{ContentRange: "bytes */16"})
	if err != nil {
		t.Fatalf("续传探测: %v", err)
	}
	if !reply.Resume || reply.CurrentSize != 10 {
		t.Errorf("续传回复错误: %+v", reply)
	}

	// 总量不一致的探测要拒绝
	_, err = m.PutChunk(id, ChunkRequest{ContentRange: "bytes */99"})
	ve, ok := err.(*ValidationError)
	if !ok || ve.Status != http.StatusNotAcceptable {
		t.Fatalf("want 406 ValidationError, got %v", err)
	}
}

func TestUploadValidation(t *testing.T) {
	m, _, _ := newManager(t)
	id := open(t, m, 15)

	cases := []struct {
		name   string
		req    ChunkRequest
		status int
	}{
		{"格式不合法", chunk("bytes abc/15", "0123456789"), http.StatusNotAcceptable},
		{"长度不一致", ChunkRequest{ContentRange: "bytes 0-9/15", ContentType: "audio/mp3", ContentLength: 5, Body: []byte("01234")}, http.StatusNotAcceptable},
		{"总量不一致", chunk("bytes 0-9/99", "0123456789"), http.StatusNotAcceptable},
		{"content type 不一致", ChunkRequest{ContentRange: "bytes 0-9/15", ContentType: "video/mp4", ContentLength: 10, Body: []byte("0123456789")}, http.StatusBadRequest},
		{"实收字节不符", ChunkRequest{ContentRange: "bytes 0-9/15", ContentType: "audio/mp3", ContentLength: 10, Body: []byte("0123")}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		_, err := m.PutChunk(id, tc.req)
		ve, ok := err.(*ValidationError)
		if !ok {
			t.Errorf("%s: want ValidationError, got %v", tc.name, err)
			continue
		}
		if ve.Status != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, ve.Status, tc.status)
		}
	}
}

func TestUploadUnknownID(t *testing.T) {
	m, _, _ := newManager(t)
	_, err := m.PutChunk("nope", chunk("bytes 0-9/15", "0123456789"))
	if err != store.ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestUploadFinalChunkReplayRejected(t *testing.T) {
	m, _, _ := newManager(t)
	id := open(t, m, 10)

	reply, err := m.PutChunk(id, chunk("bytes 0-9/10", "0123456789"))
	if err != nil || !reply.Complete {
		t.Fatalf("完成块失败: %v %+v", err, reply)
	}

	// 终态后重放最后一块：偏移已不匹配
	if _, err := m.PutChunk(id, chunk("bytes 0-9/10", "0123456789")); err == nil {
		t.Error("重放最后一块应被拒绝")
	}
}
