package orchestrator

import "testing"

func TestClipLoopProgressLinear(t *testing.T) {
	cases := []struct {
		completed, total, want int
	}{
		{0, 4, ProgressClipLoopStart},
		{2, 4, 40},
		{4, 4, ProgressClipLoopEnd},
		{0, 0, ProgressClipLoopStart},
	}
	for _, c := range cases {
		if got := clipLoopProgress(c.completed, c.total); got != c.want {
			t.Errorf("clipLoopProgress(%d, %d) = %d, want %d", c.completed, c.total, got, c.want)
		}
	}
}
