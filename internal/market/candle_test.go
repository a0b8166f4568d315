package market

import (
	"testing"
	"time"
)

func TestCandleHelpers(t *testing.T) {
	bull := Candle{Open: 100, High: 110, Low: 95, Close: 108}
	bear := Candle{Open: 108, High: 109, Low: 99, Close: 100}

	if got := bull.Range(); got != 15 {
		t.Fatalf("Range 应为 15, 实际=%v", got)
	}
	if got := bull.Body(); got != 8 {
		t.Fatalf("阳线实体应为 8, 实际=%v", got)
	}
	if got := bear.Body(); got != 8 {
		t.Fatalf("阴线实体应为 8, 实际=%v", got)
	}
	if !bull.IsBullish() || bear.IsBullish() {
		t.Fatalf("IsBullish 判断错误")
	}
}

func TestCandleContains(t *testing.T) {
	outer := Candle{High: 110, Low: 95}
	inner := Candle{High: 105, Low: 100}
	if !outer.Contains(inner) {
		t.Fatalf("外包络应包含内 K 线")
	}
	if inner.Contains(outer) {
		t.Fatalf("内 K 线不应包含外包络")
	}
	// 等高等低视为包含
	if !outer.Contains(outer) {
		t.Fatalf("区间相等应视为包含")
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		interval string
		want     time.Duration
		ok       bool
	}{
		{"1m", time.Minute, true},
		{"30m", 30 * time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"15s", 0, false},
		{"x1h", 0, false},
	}
	for _, tc := range cases {
		got, ok := IntervalDuration(tc.interval)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("IntervalDuration(%q)=(%v,%v), 期望 (%v,%v)", tc.interval, got, ok, tc.want, tc.ok)
		}
	}
}
