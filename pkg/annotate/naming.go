package annotate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/feldberlin/timething-web/pkg/models"
)

// 说话人分离模型输出的原始标签格式
var speakerPattern = regexp.MustCompile(`^SPEAKER_(\d+)$`)

var numberWords = []string{
	"Zero", "One", "Two", "Three", "Four", "Five",
	"Six", "Seven", "Eight", "Nine", "Ten",
}

// nameSpeakers 把原始 SPEAKER_NN 标签改写成展示名称
// 命名策略随说话人数量变化：一人直接叫 Speaker，两三人按
// 首次出现顺序用英文数词（Speaker One），更多人退回数字（Speaker 4）
func nameSpeakers(turns []models.Turn) error {
	// 按首次出现顺序给每个原始标签编号（从 1 开始）
	firstSeen := make(map[string]int)
	for _, t := range turns {
		if !speakerPattern.MatchString(t.Speaker) {
			return fmt.Errorf("意外的说话人格式: %s", t.Speaker)
		}
		if _, ok := firstSeen[t.Speaker]; !ok {
			firstSeen[t.Speaker] = len(firstSeen) + 1
		}
	}

	n := len(firstSeen)
	for i := range turns {
		switch {
		case n == 1:
			turns[i].Speaker = "Speaker"
		case n <= 3:
			turns[i].Speaker = speakerWordName(firstSeen[turns[i].Speaker])
		default:
			turns[i].Speaker = fmt.Sprintf("Speaker %d", speakerNumber(turns[i].Speaker))
		}
	}
	return nil
}

// speakerNumber SPEAKER_00 → 1（沿用分离器自己的编号）
func speakerNumber(raw string) int {
	m := speakerPattern.FindStringSubmatch(raw)
	index, _ := strconv.Atoi(m[1])
	return index + 1
}

func speakerWordName(number int) string {
	if number < len(numberWords) {
		return "Speaker " + numberWords[number]
	}
	return fmt.Sprintf("Speaker %d", number)
}
