package transcribe

import "testing"

// 片段数向上取整；整除时不产生零长度的尾片段
func TestSegmentCount(t *testing.T) {
	s := NewSplitter(600)

	cases := []struct {
		duration float64
		want     int
	}{
		{600, 1},
		{601, 2},
		{1199.9, 2},
		{1200, 2},
		{1200.5, 3},
		{1250, 3},
	}
	for _, tc := range cases {
		if got := s.segmentCount(tc.duration); got != tc.want {
			t.Errorf("segmentCount(%v) = %d, want %d", tc.duration, got, tc.want)
		}
	}
}
