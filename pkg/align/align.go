// Package align 在识别结果内部做词级时间对齐。
// 不是真实的声学对齐：把每个片段的时长按词数线性均分，置信度恒为 1.0。
package align

import (
	"strings"

	"github.com/feldberlin/timething-web/pkg/models"
)

// PiecewiseLinear 由识别结果确定性地推导词级对齐
// 第 i 个词落在 [start + i*dur/k, start + (i+1)*dur/k)
// 空白片段（去空格后无词）直接跳过，避免除零
func PiecewiseLinear(transcript *models.Transcript) *models.Alignment {
	alignment := &models.Alignment{}
	if transcript == nil {
		return alignment
	}

	for _, segment := range transcript.Segments {
		words := strings.Fields(segment.Text)
		k := len(words)
		if k == 0 {
			continue
		}

		duration := segment.End - segment.Start
		step := duration / float64(k)
		for i, w := range words {
			alignment.Words = append(alignment.Words, models.AlignedWord{
				Label: w,
				Start: segment.Start + float64(i)*step,
				End:   segment.Start + float64(i+1)*step,
				Score: 1.0,
			})
		}
	}

	return alignment
}
