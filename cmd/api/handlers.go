package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feldberlin/timething-web/pkg/export"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/queue"
	"github.com/feldberlin/timething-web/pkg/store"
	"github.com/feldberlin/timething-web/pkg/upload"
)

// mediaForm 上传会话声明
type mediaForm struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"required"`
}

// handleOpenUpload 创建上传会话，返回记录 id
func (app *App) handleOpenUpload(c *gin.Context) {
	var form mediaForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	if form.SizeBytes > app.config.Server.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("文件太大，最大 %.0f MB",
				float64(app.config.Server.MaxUploadSize)/1024/1024),
		})
		return
	}

	id, err := app.uploads.Open(models.UploadInfo{
		Filename:    form.Filename,
		ContentType: form.ContentType,
		SizeBytes:   form.SizeBytes,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建上传会话失败"})
		return
	}

	log.Printf("✓ 上传会话已创建: %s (%s, %d 字节)", id, form.Filename, form.SizeBytes)
	c.JSON(http.StatusOK, id)
}

// handleUploadChunk 接收一个分块或者续传探测请求
// 200 = 上传完成；308 = 继续（Content-Range 回显已接受区间，
// 或续传探测时 Range 指示已持久化区间）
func (app *App) handleUploadChunk(c *gin.Context) {
	id := c.Param("id")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, app.config.Server.MaxUploadSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败: " + err.Error()})
		return
	}

	reply, err := app.uploads.PutChunk(id, upload.ChunkRequest{
		ContentRange:  c.GetHeader("Content-Range"),
		ContentType:   c.GetHeader("Content-Type"),
		ContentLength: c.Request.ContentLength,
		Body:          body,
	})
	if err != nil {
		var ve *upload.ValidationError
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		case errors.As(err, &ve):
			log.Printf("⚠️ 分块被拒绝 (id=%s): %s", id, ve.Reason)
			c.JSON(ve.Status, gin.H{"error": ve.Reason})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	switch {
	case reply.Resume:
		c.Header("Range", fmt.Sprintf("bytes=0-%d", reply.CurrentSize-1))
		c.Status(http.StatusPermanentRedirect)
	case reply.Complete:
		log.Printf("✓ 上传完成: %s", id)
		c.Status(http.StatusOK)
	default:
		c.Header("Content-Range", fmt.Sprintf("bytes=%d-%d", reply.Start, reply.End))
		c.Status(http.StatusPermanentRedirect)
	}
}

// handleTranscribeStream 前台运行流水线，SSE 实时推送进度
// 事件名是更新的类型名，数据是 JSON 负载；终态事件后流关闭
func (app *App) handleTranscribeStream(c *gin.Context) {
	id := c.Param("id")
	language := c.Query("language")
	force := c.Query("force") == "true"

	if _, err := app.store.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}

	// 同一记录同时只允许一次运行
	if !app.locks.Acquire(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "该记录已有运行中的流水线"})
		return
	}
	defer app.locks.Release(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := app.pipe.Run(c.Request.Context(), id, language, force)
	c.Stream(func(w io.Writer) bool {
		e, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(e.Name, e.Data)
		return true
	})
}

// runRequest 后台运行请求的可选参数
type runRequest struct {
	Language string `json:"language"`
	Force    bool   `json:"force"`
}

// handleEnqueueRun 把一次流水线运行排入后台队列
func (app *App) handleEnqueueRun(c *gin.Context) {
	id := c.Param("id")

	if _, err := app.store.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}

	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
			return
		}
	}

	job := &queue.PipelineJob{
		TranscriptionID: id,
		Language:        req.Language,
		Force:           req.Force,
	}
	if err := app.queue.Enqueue(job); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务加入队列失败: " + err.Error()})
		return
	}

	log.Printf("✓ 任务已加入队列: %s", id)
	c.JSON(http.StatusAccepted, gin.H{"transcription_id": id, "status": "queued"})
}

// handleGetTranscription 返回转写记录快照
func (app *App) handleGetTranscription(c *gin.Context) {
	id := c.Param("id")

	rec, err := app.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleListTranscriptions 列出所有转写记录
func (app *App) handleListTranscriptions(c *gin.Context) {
	recs, err := app.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcriptions": recs, "total": len(recs)})
}

// handlePatchTrack 部分更新媒体元数据
func (app *App) handlePatchTrack(c *gin.Context) {
	id := c.Param("id")

	var patch models.TrackPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	rec, err := app.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}
	if rec.Track == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "还没有媒体元数据，无法更新"})
		return
	}

	if err := app.store.Update(id, func(t *models.Transcription) {
		patch.Apply(t.Track)
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	updated, _ := app.store.Get(id)
	c.JSON(http.StatusOK, updated.Track)
}

// handleExport 导出字幕
func (app *App) handleExport(c *gin.Context) {
	id := c.Param("id")
	format := c.Query("format")

	rec, err := app.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}

	data, contentType, err := export.Export(rec, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if format == "" {
		format = "srt"
	}
	base := strings.TrimSuffix(rec.Upload.Filename, filepath.Ext(rec.Upload.Filename))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+format))
	c.Data(http.StatusOK, contentType, data)
}

// handleMedia 按 Range 流式返回原始媒体
func (app *App) handleMedia(c *gin.Context) {
	id := c.Param("id")

	rec, err := app.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("无效的 id: %s", id)})
		return
	}

	total, err := app.blobs.Size(id)
	if err != nil || total == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "媒体文件不存在"})
		return
	}

	start, end, err := parseByteRange(c.GetHeader("Range"), total)
	if err != nil {
		c.JSON(http.StatusRequestedRangeNotSatisfiable, gin.H{"error": "range 不合法"})
		return
	}

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	c.Header("Content-Length", strconv.FormatInt(end-start+1, 10))
	c.Header("Content-Type", rec.Upload.ContentType)
	c.Status(http.StatusPartialContent)

	if err := app.blobs.ReadRange(id, start, end, c.Writer); err != nil {
		// 头已发出，只能记录
		log.Printf("⚠️ 读取媒体失败 (id=%s): %v", id, err)
	}
}

// parseByteRange 解析 Range: bytes=<start>-<end>
// start/end 均可省略，分别默认为 0 和 total-1
func parseByteRange(header string, total int64) (int64, int64, error) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, fmt.Errorf("range 格式不合法: %q", header)
	}

	parts := strings.SplitN(strings.TrimPrefix(header, "bytes="), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("range 格式不合法: %q", header)
	}

	start, end := int64(0), total-1
	var err error
	if parts[0] != "" {
		if start, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, 0, err
		}
	}
	if parts[1] != "" {
		if end, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, 0, err
		}
	}

	if start < 0 || end >= total || start > end {
		return 0, 0, fmt.Errorf("range 越界: %q", header)
	}
	return start, end, nil
}
