package detector

import (
	"math"
	"testing"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

func rangeBars(rows [][3]float64) []market.Candle {
	out := make([]market.Candle, 0, len(rows))
	for i, r := range rows {
		open := int64(i) * 60_000
		out = append(out, market.Candle{
			OpenTime:  open,
			CloseTime: open + 59_999,
			Open:      r[2],
			High:      r[0],
			Low:       r[1],
			Close:     r[2],
			Volume:    10,
			Trades:    5,
		})
	}
	return out
}

func TestDetectOverlapBasic(t *testing.T) {
	rows := make([][3]float64, 10)
	for i := range rows {
		rows[i] = [3]float64{105, 95, 100}
	}
	box, ok := DetectOverlap(rangeBars(rows), OverlapOptions{})
	if !ok {
		t.Fatalf("10 根互相重叠的 K 线应识别出盘整")
	}
	if box.Upper != 105 || box.Lower != 95 || box.Middle != 100 {
		t.Fatalf("公共带应为 [95,105], 实际=[%v,%v]", box.Lower, box.Upper)
	}
	if box.Bars != 10 || box.StartIndex != 0 || box.EndIndex != 9 {
		t.Fatalf("窗口应覆盖全部 10 根, 实际=%+v", box)
	}
	if math.Abs(box.HeightPct-10) > 1e-9 {
		t.Fatalf("带宽应为 10%%, 实际=%v", box.HeightPct)
	}
	if box.StartTime != 0 || box.EndTime != 9*60_000+59_999 {
		t.Fatalf("时间范围错误: start=%d end=%d", box.StartTime, box.EndTime)
	}
	// 典型价 100 落在第 5 桶, 桶心 100.5
	if math.Abs(box.VolumeNode-100.5) > 1e-9 {
		t.Fatalf("成交密集价位应为 100.5, 实际=%v", box.VolumeNode)
	}
	// 时长 10/20 得 25 分, 带宽 10% 超过上限不得分
	if math.Abs(box.Score-25) > 1e-9 {
		t.Fatalf("得分应为 25, 实际=%v", box.Score)
	}
	// 窗口覆盖整段序列, 没有可对比的历史
	if box.ATRRatio != 0 {
		t.Fatalf("历史不足时压缩比应为 0, 实际=%v", box.ATRRatio)
	}
}

func TestDetectOverlapATRCompression(t *testing.T) {
	rows := make([][3]float64, 0, 45)
	for i := 0; i < 30; i++ {
		rows = append(rows, [3]float64{88, 80, 84})
	}
	for i := 0; i < 15; i++ {
		rows = append(rows, [3]float64{103, 98, 100})
	}
	box, ok := DetectOverlap(rangeBars(rows), OverlapOptions{})
	if !ok {
		t.Fatalf("后 15 根重叠应识别出盘整")
	}
	if box.Bars != 15 || box.StartIndex != 30 {
		t.Fatalf("窗口应为后 15 根, 实际 bars=%d start=%d", box.Bars, box.StartIndex)
	}
	// 窗口内波幅 5 低于之前的 8, 压缩比应落在 (0,1)
	if box.ATRRatio <= 0 || box.ATRRatio >= 1 {
		t.Fatalf("压缩比应落在 (0,1), 实际=%v", box.ATRRatio)
	}
}

func TestDetectOverlapBreaksOnGap(t *testing.T) {
	rows := make([][3]float64, 0, 12)
	for i := 0; i < 5; i++ {
		rows = append(rows, [3]float64{120, 115, 117})
	}
	for i := 0; i < 7; i++ {
		rows = append(rows, [3]float64{105, 95, 100})
	}
	box, ok := DetectOverlap(rangeBars(rows), OverlapOptions{})
	if !ok {
		t.Fatalf("后 7 根重叠应识别出盘整")
	}
	if box.Bars != 7 || box.StartIndex != 5 {
		t.Fatalf("窗口应止于价格带断裂处, 实际 bars=%d start=%d", box.Bars, box.StartIndex)
	}
}

func TestDetectOverlapShrinkingBand(t *testing.T) {
	rows := [][3]float64{
		{110, 90, 100},
		{105, 95, 100},
		{103, 98, 100},
	}
	box, ok := DetectOverlap(rangeBars(rows), OverlapOptions{MinBars: 2})
	if !ok {
		t.Fatalf("嵌套收窄的 K 线应识别出盘整")
	}
	if box.Upper != 103 || box.Lower != 98 || box.Bars != 3 {
		t.Fatalf("公共带应收敛到 [98,103], 实际=%+v", box)
	}
}

func TestDetectOverlapTooShort(t *testing.T) {
	rows := make([][3]float64, 5)
	for i := range rows {
		rows[i] = [3]float64{105, 95, 100}
	}
	if _, ok := DetectOverlap(rangeBars(rows), OverlapOptions{}); ok {
		t.Fatalf("不足 MinBars 不应识别出盘整")
	}

	rows = make([][3]float64, 0, 10)
	for i := 0; i < 7; i++ {
		rows = append(rows, [3]float64{120, 115, 117})
	}
	for i := 0; i < 3; i++ {
		rows = append(rows, [3]float64{105, 95, 100})
	}
	if _, ok := DetectOverlap(rangeBars(rows), OverlapOptions{}); ok {
		t.Fatalf("重叠后缀仅 3 根不应识别出盘整")
	}
}

func TestOverlapScore(t *testing.T) {
	if got := overlapScore(20, 0); got != 100 {
		t.Fatalf("20 根零带宽应得满分, 实际=%v", got)
	}
	if got := overlapScore(10, 2.5); got != 50 {
		t.Fatalf("10 根带宽 2.5%% 应得 50 分, 实际=%v", got)
	}
}

func TestVolumeNode(t *testing.T) {
	candles := []market.Candle{
		{High: 101, Low: 100, Close: 100.5, Volume: 10},
		{High: 110, Low: 109, Close: 109.5, Volume: 50},
		{High: 102, Low: 101, Close: 101.5, Volume: 5},
		{High: 109.5, Low: 108.5, Close: 109, Volume: 20},
	}
	// 区间 [100,110] 分 5 桶, 高成交集中在最高桶, 桶心 109
	if got := volumeNode(candles, 5); math.Abs(got-109) > 1e-9 {
		t.Fatalf("成交密集价位应为 109, 实际=%v", got)
	}
}
