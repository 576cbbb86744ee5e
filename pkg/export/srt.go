package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/feldberlin/timething-web/pkg/models"
)

// SRT 字幕文本默认换行列宽
const defaultColumns = 80

// SRT 将识别结果转成 SRT 字幕文本，例如：
//
//	1
//	00:00:00,498 --> 00:00:02,827
//	Here's what I love most about food and diet.
//
// 块编号从 1 开始，文本按列宽换行
func SRT(transcript *models.Transcript, columns int) string {
	if transcript == nil {
		return ""
	}
	if columns <= 0 {
		columns = defaultColumns
	}

	var builder strings.Builder
	number := 0
	for _, segment := range transcript.Segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}

		// 编号只随实际输出的块递增，跳过的空片段不留空洞
		number++
		builder.WriteString(fmt.Sprintf("%d\n", number))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(segment.Start), formatSRTTime(segment.End)))
		builder.WriteString(wrap(text, columns))
		builder.WriteString("\n\n")
	}

	return builder.String()
}

// formatSRTTime 将秒数格式化为 SRT 时间格式
// 例如: 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	millis := ms % 1000
	secs := (ms / 1000) % 60
	minutes := (ms / 60000) % 60
	hours := ms / 3600000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// wrap 按词贪心换行，单词过长时独占一行
func wrap(text string, columns int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= columns {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)

	return strings.Join(lines, "\n")
}
