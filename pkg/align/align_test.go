package align

import (
	"math"
	"strings"
	"testing"

	"github.com/feldberlin/timething-web/pkg/models"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPiecewiseLinear(t *testing.T) {
	// 词数和时间区间取自参考转写样例
	transcript := &models.Transcript{
		Segments: []models.TranscriptSegment{
			{Text: words(23), Start: 0, End: 10},
			{Text: words(21), Start: 10.88, End: 17.08},
			{Text: words(2), Start: 17.88, End: 19.88},
			{Text: words(7), Start: 20, End: 22.7},
		},
	}

	a := PiecewiseLinear(transcript)
	if len(a.Words) != 23+21+2+7 {
		t.Fatalf("词数 = %d", len(a.Words))
	}

	if !approx(a.Words[0].Start, 0.0) {
		t.Errorf("word 0 start = %v", a.Words[0].Start)
	}
	if !approx(a.Words[1].Start, 10.0*1/23) {
		t.Errorf("word 1 start = %v, want %v", a.Words[1].Start, 10.0*1/23)
	}
	if !approx(a.Words[23].Start, 10.88) {
		t.Errorf("word 23 start = %v", a.Words[23].Start)
	}
	if !approx(a.Words[24].Start, 10.88+6.2*1/21) {
		t.Errorf("word 24 start = %v, want %v", a.Words[24].Start, 10.88+6.2*1/21)
	}
	if !approx(a.Words[44].Start, 17.88) {
		t.Errorf("word 44 start = %v", a.Words[44].Start)
	}
	if !approx(a.Words[45].Start, 17.88+2.0*1/2) {
		t.Errorf("word 45 start = %v", a.Words[45].Start)
	}
	if !approx(a.Words[46].Start, 20.0) {
		t.Errorf("word 46 start = %v", a.Words[46].Start)
	}
	if !approx(a.Words[47].Start, 20+2.7*1/7) {
		t.Errorf("word 47 start = %v", a.Words[47].Start)
	}

	for i, w := range a.Words {
		if w.Score != 1.0 {
			t.Fatalf("word %d score = %v", i, w.Score)
		}
		if w.End <= w.Start {
			t.Fatalf("word %d 区间非法: [%v, %v)", i, w.Start, w.End)
		}
	}
}

func TestPiecewiseLinearEmptySegment(t *testing.T) {
	transcript := &models.Transcript{
		Segments: []models.TranscriptSegment{
			{Text: "   ", Start: 0, End: 5},
			{Text: "hello world", Start: 5, End: 7},
		},
	}

	a := PiecewiseLinear(transcript)
	if len(a.Words) != 2 {
		t.Fatalf("空白片段应被跳过, 词数 = %d", len(a.Words))
	}
	if a.Words[0].Label != "hello" || !approx(a.Words[0].Start, 5) {
		t.Errorf("word 0 = %+v", a.Words[0])
	}
}

func TestPiecewiseLinearNil(t *testing.T) {
	a := PiecewiseLinear(nil)
	if a == nil || len(a.Words) != 0 {
		t.Errorf("nil 输入应返回空对齐")
	}
}
