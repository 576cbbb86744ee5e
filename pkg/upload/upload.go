package upload

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/store"
)

// ValidationError 上传协议校验失败
// 校验失败不会改变会话状态，Status 供边界层直接映射 HTTP 状态码
type ValidationError struct {
	Status int
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(status int, format string, args ...any) *ValidationError {
	return &ValidationError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// Content-Range 的两种形式。接受 "bytes " 和 "bytes=" 两种写法
var (
	resumeRangeRe = regexp.MustCompile(`^bytes[= ]\*/(\d+)$`)
	dataRangeRe   = regexp.MustCompile(`^bytes[= ](\d+)-(\d+)/(\d+)$`)
)

// ChunkRequest 一次 PUT 请求携带的分块数据
type ChunkRequest struct {
	ContentRange  string
	ContentType   string
	ContentLength int64
	Body          []byte
}

// ChunkReply 分块处理结果
// Complete: 上传完成（终态）
// Resume:   续传探测，CurrentSize 为当前已持久化字节数
// 否则为继续信号，Start/End 回显本次接受的区间
type ChunkReply struct {
	Complete    bool
	Resume      bool
	CurrentSize int64
	Start       int64
	End         int64
}

// Manager 断点续传上传会话管理器
// 严格连续性：下一块的 start 必须等于当前已持久化的文件大小
type Manager struct {
	store store.Store
	blobs *media.BlobStore
}

// NewManager 创建上传管理器
func NewManager(s store.Store, blobs *media.BlobStore) *Manager {
	return &Manager{store: s, blobs: blobs}
}

// Open 创建上传会话，返回不可猜测的记录 id
func (m *Manager) Open(info models.UploadInfo) (string, error) {
	id := uuid.New().String()

	t := &models.Transcription{
		ID:     id,
		Upload: info,
		Path:   m.blobs.Path(id),
	}
	if err := m.store.Create(t); err != nil {
		return "", fmt.Errorf("创建转写记录失败: %w", err)
	}

	return id, nil
}

// PutChunk 处理一个分块或续传探测请求
// 校验顺序：区间语法 → 长度一致 → 声明总量一致 → Content-Type 一致
// → 实收字节数一致 → 严格连续。任何一步失败则状态保持不变
func (m *Manager) PutChunk(id string, req ChunkRequest) (*ChunkReply, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	fileSize, err := m.blobs.Size(id)
	if err != nil {
		return nil, err
	}

	// 客户端是否在探测续传位置？
	if match := resumeRangeRe.FindStringSubmatch(req.ContentRange); match != nil && req.ContentLength == 0 {
		want, _ := strconv.ParseInt(match[1], 10, 64)
		if want != t.Upload.SizeBytes {
			return nil, invalid(http.StatusNotAcceptable, "续传总量不一致: %s", req.ContentRange)
		}
		return &ChunkReply{Resume: true, CurrentSize: fileSize}, nil
	}

	match := dataRangeRe.FindStringSubmatch(req.ContentRange)
	if match == nil {
		return nil, invalid(http.StatusNotAcceptable, "range 格式不合法: %s", req.ContentRange)
	}

	start, _ := strconv.ParseInt(match[1], 10, 64)
	end, _ := strconv.ParseInt(match[2], 10, 64)
	total, _ := strconv.ParseInt(match[3], 10, 64)

	if end-start != req.ContentLength-1 {
		return nil, invalid(http.StatusNotAcceptable, "range 与 content length 不一致: %s", req.ContentRange)
	}

	if total != t.Upload.SizeBytes || end >= total {
		return nil, invalid(http.StatusNotAcceptable, "range 与声明的文件大小不一致: %s", req.ContentRange)
	}

	if req.ContentType != t.Upload.ContentType {
		return nil, invalid(http.StatusBadRequest, "content type 不一致: %s", req.ContentType)
	}

	if int64(len(req.Body)) != req.ContentLength {
		return nil, invalid(http.StatusBadRequest, "声明 %d 字节但实收 %d 字节", req.ContentLength, len(req.Body))
	}

	if fileSize != start {
		return nil, invalid(http.StatusBadRequest, "content-range 不连续: %s", req.ContentRange)
	}

	if err := m.blobs.WriteAt(id, start, req.Body); err != nil {
		return nil, err
	}

	if end+1 == total {
		return &ChunkReply{Complete: true}, nil
	}
	return &ChunkReply{Start: start, End: end}, nil
}
