package version

import "testing"

func TestIncrement(t *testing.T) {
	if got := Increment(0); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}
	if got := Increment(41); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

// TestIncrementWrapsAtCeiling 测试到达上限后回绕到 1 而不是 0
func TestIncrementWrapsAtCeiling(t *testing.T) {
	if got := Increment(Ceiling); got != 1 {
		t.Errorf("Expected wrap to 1, got %d", got)
	}
	if got := Increment(Ceiling - 1); got != Ceiling {
		t.Errorf("Expected %d, got %d", Ceiling, got)
	}
	// 回绕之后继续正常递增
	if got := Increment(Increment(Ceiling)); got != 2 {
		t.Errorf("Expected 2 after wrap, got %d", got)
	}
}

func TestIsNewerPlain(t *testing.T) {
	tests := []struct {
		name     string
		incoming int64
		current  int64
		want     bool
	}{
		{"larger is newer", 5, 4, true},
		{"smaller is older", 4, 5, false},
		{"equal is not newer", 7, 7, false},
		{"zero vs one", 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNewer(tt.incoming, tt.current); got != tt.want {
				t.Errorf("IsNewer(%d, %d) = %v, want %v", tt.incoming, tt.current, got, tt.want)
			}
		})
	}
}

// TestIsNewerAcrossWrap 测试回绕边界附近的判断
// 回绕后数值小的版本实际上更新
func TestIsNewerAcrossWrap(t *testing.T) {
	tests := []struct {
		name     string
		incoming int64
		current  int64
		want     bool
	}{
		{"wrapped 1 beats ceiling-1", 1, Ceiling - 1, true},
		{"wrapped 1 beats ceiling", 1, Ceiling, true},
		{"ceiling-1 is older than wrapped 1", Ceiling - 1, 1, false},
		{"wrapped 2 beats ceiling-5", 2, Ceiling - 5, true},
		{"half ceiling boundary is not wrap", halfCeiling, 0, true},
		{"just past half ceiling treats small as newer", 0, halfCeiling + 1, true},
		{"large gap forward is wrap", Ceiling - 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNewer(tt.incoming, tt.current); got != tt.want {
				t.Errorf("IsNewer(%d, %d) = %v, want %v", tt.incoming, tt.current, got, tt.want)
			}
		})
	}
}

// TestVersionSequenceMonotonic 模拟连续写入，版本在回绕点之外严格递增
func TestVersionSequenceMonotonic(t *testing.T) {
	v := int64(0)
	for i := 0; i < 1000; i++ {
		next := Increment(v)
		if !IsNewer(next, v) {
			t.Fatalf("Increment produced non-newer version: %d -> %d", v, next)
		}
		v = next
	}

	// 从回绕点附近继续
	v = Ceiling - 3
	for i := 0; i < 10; i++ {
		next := Increment(v)
		if !IsNewer(next, v) {
			t.Fatalf("Increment produced non-newer version across wrap: %d -> %d", v, next)
		}
		v = next
	}
}
