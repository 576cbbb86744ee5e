package pipeline

import (
	"context"

	"github.com/feldberlin/timething-web/pkg/models"
)

// UpdateKind 阶段更新的类别标签
type UpdateKind int

const (
	KindPercent UpdateKind = iota // 进度百分比
	KindResult                    // 阶段最终产物
	KindFailure                   // 阶段失败
)

// StageUpdate 阶段更新（封闭和类型，Kind 决定哪个负载有效）
// 成功运行以一个 Result 收尾；失败只产生一个 Failure，之后序列结束
type StageUpdate struct {
	Kind        UpdateKind
	Percent     int
	Track       *models.Track
	Transcript  *models.Transcript
	Diarization *models.Diarization
	Err         error
}

// Percent 构造进度更新
func Percent(p int) StageUpdate {
	return StageUpdate{Kind: KindPercent, Percent: p}
}

// TrackResult 转码阶段的最终产物
func TrackResult(track *models.Track) StageUpdate {
	return StageUpdate{Kind: KindResult, Track: track}
}

// TranscriptResult 识别阶段的最终产物
func TranscriptResult(transcript *models.Transcript) StageUpdate {
	return StageUpdate{Kind: KindResult, Transcript: transcript}
}

// DiarizationResult 标注阶段的最终产物
func DiarizationResult(d *models.Diarization) StageUpdate {
	return StageUpdate{Kind: KindResult, Diarization: d}
}

// Failure 构造失败更新
func Failure(err error) StageUpdate {
	return StageUpdate{Kind: KindFailure, Err: err}
}

// Transcoder 转码阶段
// 实现必须满足：进度单调不减；可恢复（已有合法产物且不强制时直接给出
// Percent(100) + Result，不重做）；失败时只发一个 Failure；结束后关闭通道
type Transcoder interface {
	Transcode(ctx context.Context, t *models.Transcription, force bool) <-chan StageUpdate
}

// Transcriber 识别阶段
type Transcriber interface {
	Transcribe(ctx context.Context, t *models.Transcription, language string) <-chan StageUpdate
}

// Annotator 说话人标注阶段
type Annotator interface {
	Annotate(ctx context.Context, t *models.Transcription) <-chan StageUpdate
}

// Event 推送给客户端的流水线事件，Name 为 SSE 事件名，Data 为 JSON 负载
type Event struct {
	Name string
	Data any
}

// PipelineProgress 状态迁移事件，completed 时附带最终快照
type PipelineProgress struct {
	State         models.PipelineState  `json:"state"`
	Transcription *models.Transcription `json:"transcription,omitempty"`
}

// TranscodingProgress 转码阶段事件
type TranscodingProgress struct {
	PercentDone *int          `json:"percent_done,omitempty"`
	Track       *models.Track `json:"track,omitempty"`
}

// TranscriptionProgress 识别阶段事件
type TranscriptionProgress struct {
	PercentDone *int               `json:"percent_done,omitempty"`
	Transcript  *models.Transcript `json:"transcript,omitempty"`
}

// AnnotationProgress 标注阶段事件
type AnnotationProgress struct {
	PercentDone *int                `json:"percent_done,omitempty"`
	Diarization *models.Diarization `json:"diarization,omitempty"`
}
