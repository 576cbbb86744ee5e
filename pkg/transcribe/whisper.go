package transcribe

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Result 一次识别调用的结果
type Result struct {
	Text     string
	Language string
	Segments []ResultSegment
}

// ResultSegment 识别结果中的时间戳片段（相对于本次调用的音频起点）
type ResultSegment struct {
	Start float64
	End   float64
	Text  string
}

// Recognizer 语音识别后端
type Recognizer interface {
	Recognize(ctx context.Context, audioPath, language string) (*Result, error)
}

// WhisperRecognizer OpenAI Whisper API 后端
type WhisperRecognizer struct {
	client *openai.Client
}

// NewWhisperRecognizer 创建 Whisper 识别器
func NewWhisperRecognizer(apiKey string) *WhisperRecognizer {
	return &WhisperRecognizer{
		client: openai.NewClient(apiKey),
	}
}

// Recognize 识别单个音频文件
// 使用 verbose_json 响应格式拿到片段级时间戳；language 为空时自动检测
func (w *WhisperRecognizer) Recognize(ctx context.Context, audioPath, language string) (*Result, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper 请求失败: %v", err)
	}

	result := &Result{
		Text:     resp.Text,
		Language: resp.Language,
		Segments: make([]ResultSegment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, ResultSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return result, nil
}

// recognizeWithRetry 带指数退避的识别调用
func recognizeWithRetry(ctx context.Context, r Recognizer, audioPath, language string, maxRetries int) (*Result, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		result, err := r.Recognize(ctx, audioPath, language)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("任务被取消: %v", ctx.Err())
		}

		// 指数退避：1s, 2s, 4s...
		if i < maxRetries-1 {
			waitTime := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, fmt.Errorf("任务被取消: %v", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("重试 %d 次后仍然失败: %v", maxRetries, lastErr)
}
