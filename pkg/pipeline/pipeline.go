// Package pipeline 编排媒体处理流水线。
//
// 状态机：Transcoding → Transcribing → Annotating → Completed，
// 任意状态遇错进入吸收态 Errored。每个阶段成功后先持久化记录，
// 再向下游发出该阶段的终态事件，崩溃后重跑会跳过已完成的阶段。
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/feldberlin/timething-web/pkg/align"
	"github.com/feldberlin/timething-web/pkg/models"
	"github.com/feldberlin/timething-web/pkg/store"
)

// Pipeline 单个转写记录的流水线编排器
// 同一 id 不允许并发运行（由调用方的运行锁保证）；不同 id 完全独立
type Pipeline struct {
	store         store.Store
	transcoder    Transcoder
	transcriber   Transcriber
	annotator     Annotator
	stageTimeout  time.Duration
	skipAnnotated bool
}

// Options 流水线选项
type Options struct {
	StageTimeout time.Duration
	// 已有标注结果时跳过标注阶段；默认每次都重跑
	SkipAnnotated bool
}

// New 创建流水线编排器，各阶段通过接口注入
func New(s store.Store, transcoder Transcoder, transcriber Transcriber, annotator Annotator, opts Options) *Pipeline {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 20 * time.Minute
	}
	return &Pipeline{
		store:         s,
		transcoder:    transcoder,
		transcriber:   transcriber,
		annotator:     annotator,
		stageTimeout:  opts.StageTimeout,
		skipAnnotated: opts.SkipAnnotated,
	}
}

// Run 启动一次流水线运行，返回有序事件流
// 流在终态事件（completed / error）之后关闭。调用方必须持续读取
// 直到通道关闭，或取消 ctx；ctx 取消后未投递的事件被丢弃
func (p *Pipeline) Run(ctx context.Context, id, language string, force bool) <-chan Event {
	out := make(chan Event)
	go p.run(ctx, id, language, force, out)
	return out
}

// emit 投递一个事件，ctx 取消时放弃投递
func emit(ctx context.Context, out chan<- Event, e Event) {
	select {
	case out <- e:
	case <-ctx.Done():
	}
}

func (p *Pipeline) run(ctx context.Context, id, language string, force bool, out chan<- Event) {
	defer close(out)

	t, err := p.store.Get(id)
	if err != nil {
		log.Printf("❌ 流水线启动失败 (id=%s): %v", id, err)
		emit(ctx, out, stateEvent(models.StateError, nil))
		return
	}

	// 转码
	if force || t.NeedsTranscode() {
		emit(ctx, out, stateEvent(models.StateTranscoding, nil))
		if err := p.runTranscode(ctx, out, t, force); err != nil {
			p.fail(ctx, out, id, err)
			return
		}
	} else {
		log.Printf("已转码，跳过 (id=%s)", id)
	}

	// 识别 + 对齐
	if force || t.NeedsTranscribe(language) {
		emit(ctx, out, stateEvent(models.StateTranscribing, nil))
		if err := p.runTranscribe(ctx, out, t, language); err != nil {
			p.fail(ctx, out, id, err)
			return
		}
	} else {
		log.Printf("已识别，跳过 (id=%s)", id)
	}

	// 说话人标注
	if p.skipAnnotated && t.Diarization != nil {
		log.Printf("已标注，跳过 (id=%s)", id)
	} else {
		emit(ctx, out, stateEvent(models.StateAnnotating, nil))
		if err := p.runAnnotate(ctx, out, t); err != nil {
			p.fail(ctx, out, id, err)
			return
		}
	}

	emit(ctx, out, stateEvent(models.StateCompleted, t))
}

// fail 记录错误并发出终态 error 事件。失败前已持久化的进度保持不变
func (p *Pipeline) fail(ctx context.Context, out chan<- Event, id string, err error) {
	log.Printf("❌ 流水线失败 (id=%s): %v", id, err)
	emit(ctx, out, stateEvent(models.StateError, nil))
}

func stateEvent(state models.PipelineState, t *models.Transcription) Event {
	return Event{Name: "PipelineProgress", Data: PipelineProgress{State: state, Transcription: t}}
}

func (p *Pipeline) runTranscode(ctx context.Context, out chan<- Event, t *models.Transcription, force bool) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	result, err := p.drain(stageCtx, "transcode", p.transcoder.Transcode(stageCtx, t, force), func(percent int) {
		emit(ctx, out, Event{Name: "TranscodingProgress", Data: TranscodingProgress{PercentDone: &percent}})
	})
	if err != nil {
		return err
	}
	if result.Track == nil {
		return &ConsistencyError{Stage: "transcode", Detail: "Result 缺少 track"}
	}

	t.Track = result.Track
	t.Transcoded = true
	if err := p.store.Create(t); err != nil {
		return err
	}

	emit(ctx, out, Event{Name: "TranscodingProgress", Data: TranscodingProgress{Track: t.Track}})
	return nil
}

func (p *Pipeline) runTranscribe(ctx context.Context, out chan<- Event, t *models.Transcription, language string) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	result, err := p.drain(stageCtx, "transcribe", p.transcriber.Transcribe(stageCtx, t, language), func(percent int) {
		emit(ctx, out, Event{Name: "TranscriptionProgress", Data: TranscriptionProgress{PercentDone: &percent}})
	})
	if err != nil {
		return err
	}
	if result.Transcript == nil {
		return &ConsistencyError{Stage: "transcribe", Detail: "Result 缺少 transcript"}
	}

	// 对齐是纯函数，识别成功后内联执行，随识别结果一起持久化
	t.Transcript = result.Transcript
	t.Alignment = align.PiecewiseLinear(result.Transcript)
	if language != "" {
		t.Language = language
	}
	if err := p.store.Create(t); err != nil {
		return err
	}

	emit(ctx, out, Event{Name: "TranscriptionProgress", Data: TranscriptionProgress{Transcript: t.Transcript}})
	return nil
}

func (p *Pipeline) runAnnotate(ctx context.Context, out chan<- Event, t *models.Transcription) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	result, err := p.drain(stageCtx, "annotate", p.annotator.Annotate(stageCtx, t), func(percent int) {
		emit(ctx, out, Event{Name: "AnnotationProgress", Data: AnnotationProgress{PercentDone: &percent}})
	})
	if err != nil {
		return err
	}
	if result.Diarization == nil {
		return &ConsistencyError{Stage: "annotate", Detail: "Result 缺少 diarization"}
	}

	t.Diarization = result.Diarization
	if err := p.store.Create(t); err != nil {
		return err
	}

	emit(ctx, out, Event{Name: "AnnotationProgress", Data: AnnotationProgress{Diarization: t.Diarization}})
	return nil
}

// drain 阻塞消费一个阶段的更新流直到拿到 Result
// Percent 立即转发；Failure 终止并返回 StageError；
// 通道在 Result 之前关闭视为契约破坏
func (p *Pipeline) drain(ctx context.Context, stage string, updates <-chan StageUpdate, onPercent func(int)) (*StageUpdate, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, &StageError{Stage: stage, Err: ctx.Err()}
		case u, ok := <-updates:
			if !ok {
				return nil, &ConsistencyError{Stage: stage, Detail: "更新流在 Result 之前结束"}
			}
			switch u.Kind {
			case KindPercent:
				onPercent(u.Percent)
			case KindResult:
				return &u, nil
			case KindFailure:
				return nil, &StageError{Stage: stage, Err: u.Err}
			default:
				return nil, &ConsistencyError{Stage: stage, Detail: "未知的更新类别"}
			}
		}
	}
}
