// Package annotate 说话人标注阶段：调用外部分离器进程处理
// 转码产物，解析它输出的进度和说话人片段，并按说话人数量
// 把原始标签改写成展示名称。
package annotate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/pipeline"
)

// Annotator 标注阶段，实现 pipeline.Annotator
// 分离器是一个外部命令：接收 wav 路径，向 stdout 逐行输出 JSON
type Annotator struct {
	blobs   *media.BlobStore
	command string
}

// NewAnnotator 创建标注器
func NewAnnotator(blobs *media.BlobStore, command string) *Annotator {
	return &Annotator{
		blobs:   blobs,
		command: command,
	}
}

// Annotate 启动一次标注，返回更新流
func (a *Annotator) Annotate(ctx context.Context, rec *models.Transcription) <-chan pipeline.StageUpdate {
	out := make(chan pipeline.StageUpdate, 1)
	go func() {
		defer close(out)
		a.run(ctx, rec, out)
	}()
	return out
}

func (a *Annotator) run(ctx context.Context, rec *models.Transcription, out chan<- pipeline.StageUpdate) {
	if a.command == "" {
		send(ctx, out, pipeline.Failure(fmt.Errorf("未配置说话人分离命令")))
		return
	}

	parts := strings.Fields(a.command)
	args := append(parts[1:], a.blobs.TranscodedPath(rec.ID))
	cmd := exec.CommandContext(ctx, parts[0], args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		send(ctx, out, pipeline.Failure(err))
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		send(ctx, out, pipeline.Failure(fmt.Errorf("启动分离器失败: %v", err)))
		return
	}

	turns, parseErr := parseAnnotations(stdout, func(percent int) {
		send(ctx, out, pipeline.Percent(percent))
	})

	if err := cmd.Wait(); err != nil {
		send(ctx, out, pipeline.Failure(fmt.Errorf("分离器执行失败: %v (stderr: %s)", err, stderr.String())))
		return
	}
	if parseErr != nil {
		send(ctx, out, pipeline.Failure(parseErr))
		return
	}

	// 标签格式错误是致命的：说明分离器产出了无法理解的结果
	if err := nameSpeakers(turns); err != nil {
		send(ctx, out, pipeline.Failure(err))
		return
	}

	log.Printf("✓ 说话人标注完成 (id=%s, %d 个片段)", rec.ID, len(turns))
	send(ctx, out, pipeline.DiarizationResult(&models.Diarization{Turns: turns}))
}

// annotationLine 分离器 stdout 的一行
// 要么是进度 {"percent_done": 42}，要么是片段
// {"speaker": "SPEAKER_00", "start": 1.2, "end": 3.4}
type annotationLine struct {
	PercentDone *int     `json:"percent_done"`
	Speaker     string   `json:"speaker"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
}

// parseAnnotations 逐行解析分离器输出
func parseAnnotations(r io.Reader, onPercent func(int)) ([]models.Turn, error) {
	var turns []models.Turn
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var line annotationLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("解析分离器输出失败: %v (line: %s)", err, text)
		}

		switch {
		case line.PercentDone != nil:
			onPercent(*line.PercentDone)
		case line.Speaker != "" && line.Start != nil && line.End != nil:
			turns = append(turns, models.Turn{
				Speaker: line.Speaker,
				Start:   *line.Start,
				End:     *line.End,
			})
		default:
			return nil, fmt.Errorf("无法识别的分离器输出: %s", text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取分离器输出失败: %v", err)
	}
	return turns, nil
}

func send(ctx context.Context, out chan<- pipeline.StageUpdate, u pipeline.StageUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}
