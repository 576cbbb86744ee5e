// Package export 把转写结果导出为字幕格式。
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/feldberlin/timething-web/pkg/models"
)

// ErrNoTranscript 还没有识别结果可供导出
var ErrNoTranscript = fmt.Errorf("没有可导出的识别结果")

// Export 按格式导出字幕，返回内容和 Content-Type
func Export(t *models.Transcription, format string) ([]byte, string, error) {
	if t.Transcript == nil {
		return nil, "", ErrNoTranscript
	}

	switch format {
	case "", "srt":
		return []byte(SRT(t.Transcript, defaultColumns)), "text/srt", nil
	case "vtt":
		buf := &bytes.Buffer{}
		if err := toSubtitles(t.Transcript).WriteToWebVTT(buf); err != nil {
			return nil, "", fmt.Errorf("导出 WebVTT 失败: %w", err)
		}
		return buf.Bytes(), "text/vtt", nil
	case "ttml":
		buf := &bytes.Buffer{}
		if err := toSubtitles(t.Transcript).WriteToTTML(buf); err != nil {
			return nil, "", fmt.Errorf("导出 TTML 失败: %w", err)
		}
		return buf.Bytes(), "text/xml", nil
	default:
		return nil, "", fmt.Errorf("不支持的导出格式: %s", format)
	}
}

// toSubtitles 转成 astisub 的字幕结构
func toSubtitles(transcript *models.Transcript) *astisub.Subtitles {
	subtitles := astisub.NewSubtitles()

	for _, segment := range transcript.Segments {
		item := &astisub.Item{
			StartAt: time.Duration(segment.Start * float64(time.Second)),
			EndAt:   time.Duration(segment.End * float64(time.Second)),
		}
		item.Lines = append(item.Lines, astisub.Line{
			Items: []astisub.LineItem{{Text: segment.Text}},
		})
		subtitles.Items = append(subtitles.Items, item)
	}

	return subtitles
}
