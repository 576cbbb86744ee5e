// Package transcribe 语音识别阶段：长音频分片后并发调用
// Whisper API，按片段索引合并为带时间戳的完整转写文本。
package transcribe

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/feldberlin/timething-web/pkg/media"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/pipeline"
)

// Engine 识别引擎，实现 pipeline.Transcriber
// Goroutine 池并发处理分片，Channel 收集结果，按完成数汇报进度
type Engine struct {
	recognizer  Recognizer
	splitter    *Splitter
	blobs       *media.BlobStore
	workerCount int
	maxRetries  int
}

// Options 识别引擎选项
type Options struct {
	WorkerCount     int
	SegmentDuration int
	MaxRetries      int
}

// NewEngine 创建识别引擎
func NewEngine(recognizer Recognizer, blobs *media.BlobStore, opts Options) *Engine {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 3
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Engine{
		recognizer:  recognizer,
		splitter:    NewSplitter(opts.SegmentDuration),
		blobs:       blobs,
		workerCount: opts.WorkerCount,
		maxRetries:  opts.MaxRetries,
	}
}

// Transcribe 启动一次识别，返回更新流
func (e *Engine) Transcribe(ctx context.Context, rec *models.Transcription, language string) <-chan pipeline.StageUpdate {
	out := make(chan pipeline.StageUpdate, 1)
	go func() {
		defer close(out)
		e.run(ctx, rec, language, out)
	}()
	return out
}

// segmentResult 单个分片的识别结果（内部经 Channel 传递）
type segmentResult struct {
	index  int
	result *Result
	err    error
}

func (e *Engine) run(ctx context.Context, rec *models.Transcription, language string, out chan<- pipeline.StageUpdate) {
	if rec.Track == nil {
		send(ctx, out, pipeline.Failure(fmt.Errorf("识别需要先完成转码")))
		return
	}

	audioPath := e.blobs.TranscodedPath(rec.ID)
	segments, err := e.splitter.Split(audioPath, rec.Track.Duration)
	if err != nil {
		send(ctx, out, pipeline.Failure(fmt.Errorf("分片失败: %v", err)))
		return
	}
	defer e.splitter.Cleanup(segments)

	total := len(segments)
	taskChan := make(chan Segment, total)
	resultChan := make(chan segmentResult, total)

	log.Printf("🚀 启动 %d 个并发识别器处理 %d 个片段 (id=%s)", e.workerCount, total, rec.ID)
	var wg sync.WaitGroup
	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go e.worker(ctx, taskChan, resultChan, language, &wg)
	}

	for _, seg := range segments {
		taskChan <- seg
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make(map[int]*Result)
	var errs []error
	completed := 0
	for r := range resultChan {
		completed++
		if r.err != nil {
			errs = append(errs, fmt.Errorf("片段 %d 失败: %v", r.index, r.err))
			log.Printf("❌ 片段 #%d 识别失败: %v", r.index, r.err)
		} else {
			results[r.index] = r.result
			log.Printf("✅ 片段 #%d 识别完成 | 进度: %d/%d", r.index, completed, total)
		}
		send(ctx, out, pipeline.Percent(completed*100/total))
	}

	if len(errs) > 0 {
		send(ctx, out, pipeline.Failure(fmt.Errorf("识别过程中出现 %d 个错误: %v", len(errs), errs[0])))
		return
	}

	transcript := merge(segments, results, language)
	log.Printf("✓ 所有片段识别完成 (id=%s, 总长度: %d 字符)", rec.ID, len(transcript.Text))
	send(ctx, out, pipeline.TranscriptResult(transcript))
}

// worker Goroutine 池中的工作单元
func (e *Engine) worker(ctx context.Context, taskChan <-chan Segment, resultChan chan<- segmentResult, language string, wg *sync.WaitGroup) {
	defer wg.Done()

	for seg := range taskChan {
		select {
		case <-ctx.Done():
			resultChan <- segmentResult{index: seg.Index, err: fmt.Errorf("任务被取消")}
			return
		default:
		}

		result, err := recognizeWithRetry(ctx, e.recognizer, seg.Path, language, e.maxRetries)
		resultChan <- segmentResult{index: seg.Index, result: result, err: err}
	}
}

// merge 按片段索引合并识别结果
// 每个片段内的时间戳加上该片段在原始音频中的偏移
func merge(segments []Segment, results map[int]*Result, language string) *models.Transcript {
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	transcript := &models.Transcript{Language: language}
	var builder strings.Builder
	for _, seg := range sorted {
		result := results[seg.Index]
		if result == nil {
			continue
		}
		if transcript.Language == "" {
			transcript.Language = result.Language
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(strings.TrimSpace(result.Text))

		for _, rs := range result.Segments {
			transcript.Segments = append(transcript.Segments, models.TranscriptSegment{
				ID:    len(transcript.Segments),
				Text:  rs.Text,
				Start: rs.Start + seg.Start,
				End:   rs.End + seg.Start,
			})
		}
	}
	transcript.Text = builder.String()
	return transcript
}

func send(ctx context.Context, out chan<- pipeline.StageUpdate, u pipeline.StageUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}
