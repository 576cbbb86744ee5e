package models

// PipelineState 流水线状态
type PipelineState string

const (
	StateTranscoding  PipelineState = "transcoding"  // 转码中
	StateTranscribing PipelineState = "transcribing" // 识别中
	StateAnnotating   PipelineState = "annotating"   // 说话人标注中
	StateCompleted    PipelineState = "completed"    // 已完成
	StateError        PipelineState = "error"        // 失败（吸收态）
)

// UploadInfo 上传会话声明的文件信息（创建后不可变）
type UploadInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Track 媒体元数据（由转码阶段 ffprobe 探测得到）
type Track struct {
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Album    string  `json:"album,omitempty"`
	Comment  string  `json:"comment,omitempty"`
	Date     string  `json:"date,omitempty"`
	Duration float64 `json:"duration"` // 秒，转码成功后必须 > 0
	Path     string  `json:"path,omitempty"`
}

// TrackPatch Track 的部分更新（指针字段为 nil 表示不修改）
type TrackPatch struct {
	Title   *string `json:"title"`
	Artist  *string `json:"artist"`
	Album   *string `json:"album"`
	Comment *string `json:"comment"`
	Date    *string `json:"date"`
}

// Apply 将非 nil 字段合并到 Track
func (p *TrackPatch) Apply(t *Track) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Artist != nil {
		t.Artist = *p.Artist
	}
	if p.Album != nil {
		t.Album = *p.Album
	}
	if p.Comment != nil {
		t.Comment = *p.Comment
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
}

// TranscriptSegment 识别结果中的时间戳片段
// 约定：片段按顺序 start/end 单调不减，end > start
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript 识别阶段产出的完整结果
type Transcript struct {
	Language string              `json:"language"` // 检测到或请求的语言
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

// AlignedWord 对齐后的单词时间区间
type AlignedWord struct {
	Label string  `json:"label"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"` // 线性分配的对齐恒为 1.0
}

// Alignment 由 Transcript 确定性推导出的词级对齐
type Alignment struct {
	Words []AlignedWord `json:"words"`
}

// Turn 归属于单个说话人的连续时间区间
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Diarization 说话人标注阶段的产出
type Diarization struct {
	Turns []Turn `json:"turns"`
}

// Transcription 聚合根：追踪一个媒体文件走完整条流水线
// ID 在上传会话创建时分配一次，之后不可变
type Transcription struct {
	ID          string       `json:"transcription_id"`
	Upload      UploadInfo   `json:"upload"`
	Track       *Track       `json:"track,omitempty"`
	Transcript  *Transcript  `json:"transcript,omitempty"`
	Alignment   *Alignment   `json:"alignment,omitempty"`
	Diarization *Diarization `json:"diarization,omitempty"`
	Transcoded  bool         `json:"transcoded"`
	Language    string       `json:"language,omitempty"` // 请求的识别语言
	Path        string       `json:"path,omitempty"`     // 原始媒体的存储路径
}

// NeedsTranscode 转码阶段的跳过判定
func (t *Transcription) NeedsTranscode() bool {
	return !t.Transcoded || t.Track == nil
}

// NeedsTranscribe 识别阶段的跳过判定
// 请求语言变化时即使已识别也要强制重跑
func (t *Transcription) NeedsTranscribe(language string) bool {
	if t.Transcript == nil {
		return true
	}
	return language != "" && language != t.Language
}
