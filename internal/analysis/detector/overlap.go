package detector

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// OverlapOptions 盘整区间识别参数。零值字段取默认值。
type OverlapOptions struct {
	MinBars       int // 构成盘整的最少 K 线数
	MaxBars       int // 向前回溯的最大 K 线数
	VolumeBuckets int // 成交量分布的价格桶数
	ATRPeriod     int // 压缩度对比的 ATR 周期
}

func (o OverlapOptions) withDefaults() OverlapOptions {
	if o.MinBars <= 0 {
		o.MinBars = 6
	}
	if o.MaxBars <= 0 {
		o.MaxBars = 60
	}
	if o.MaxBars < o.MinBars {
		o.MaxBars = o.MinBars
	}
	if o.VolumeBuckets <= 0 {
		o.VolumeBuckets = 10
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = 14
	}
	return o
}

// OverlapRange 最近一段互相重叠的 K 线构成的盘整箱体。
// Upper/Lower 为所有成员价格区间的公共交集,VolumeNode 为窗口内成交最密集的价位。
type OverlapRange struct {
	Upper      float64 `json:"upper"`
	Lower      float64 `json:"lower"`
	Middle     float64 `json:"middle"`
	HeightPct  float64 `json:"height_pct"`
	Bars       int     `json:"bars"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	StartTime  int64   `json:"start_time"`
	EndTime    int64   `json:"end_time"`
	VolumeNode float64 `json:"volume_node"`
	// ATRRatio 窗口内 ATR 均值 / 窗口前 ATR 均值,小于 1 表示波动压缩;历史不足时为 0。
	ATRRatio float64 `json:"atr_ratio,omitempty"`
	Score    float64 `json:"score"`
}

// DetectOverlap 从最新一根 K 线向前回溯,找出仍共享公共价格带的最长后缀窗口。
// 交集一旦为空即停止扩展;窗口不足 MinBars 时返回 false。
func DetectOverlap(candles []market.Candle, opts OverlapOptions) (OverlapRange, bool) {
	opts = opts.withDefaults()
	n := len(candles)
	if n < opts.MinBars {
		return OverlapRange{}, false
	}

	last := candles[n-1]
	lower := last.Low
	upper := last.High
	bars := 1
	for i := n - 2; i >= 0 && bars < opts.MaxBars; i-- {
		nl := math.Max(lower, candles[i].Low)
		nu := math.Min(upper, candles[i].High)
		if nl > nu {
			break
		}
		lower, upper = nl, nu
		bars++
	}
	if bars < opts.MinBars {
		return OverlapRange{}, false
	}

	start := n - bars
	box := OverlapRange{
		Upper:      round4(upper),
		Lower:      round4(lower),
		Middle:     round4((upper + lower) / 2),
		Bars:       bars,
		StartIndex: start,
		EndIndex:   n - 1,
		StartTime:  candles[start].OpenTime,
		EndTime:    last.CloseTime,
	}
	if box.Middle > 0 {
		box.HeightPct = round4((upper - lower) / box.Middle * 100)
	}
	box.VolumeNode = volumeNode(candles[start:], opts.VolumeBuckets)
	box.ATRRatio = atrCompression(candles, start, opts.ATRPeriod)
	box.Score = overlapScore(bars, box.HeightPct)
	return box, true
}

// atrCompression 对比窗口内与窗口前的 ATR 均值,窗口前历史不足一个周期时返回 0。
func atrCompression(candles []market.Candle, start, period int) float64 {
	n := len(candles)
	if start <= period {
		return 0
	}
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	atr := talib.Atr(highs, lows, closes, period)

	var inSum float64
	var inCount int
	for i := start; i < n; i++ {
		if isFinite(atr[i]) && atr[i] > 0 {
			inSum += atr[i]
			inCount++
		}
	}
	var preSum float64
	var preCount int
	for i := period; i < start; i++ {
		if isFinite(atr[i]) && atr[i] > 0 {
			preSum += atr[i]
			preCount++
		}
	}
	if inCount == 0 || preCount == 0 {
		return 0
	}
	pre := preSum / float64(preCount)
	if pre <= 0 {
		return 0
	}
	return round4(inSum / float64(inCount) / pre)
}

// overlapScore 持续越久、公共带越窄,盘整越可信。20 根封顶,带宽 5% 归零。
func overlapScore(bars int, heightPct float64) float64 {
	duration := math.Min(float64(bars)/20, 1)
	tightness := 1 - heightPct/5
	if tightness < 0 {
		tightness = 0
	}
	return round2(duration*50 + tightness*50)
}

// volumeNode 按典型价 (H+L+C)/3 将成交量分桶,返回成交最大的桶心价位。
func volumeNode(candles []market.Candle, buckets int) float64 {
	if len(candles) == 0 || buckets <= 0 {
		return 0
	}
	low := candles[0].Low
	high := candles[0].High
	for _, c := range candles[1:] {
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}
	if high <= low {
		return round4(low)
	}
	step := (high - low) / float64(buckets)
	volumes := make([]float64, buckets)
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		idx := int((typical - low) / step)
		if idx >= buckets {
			idx = buckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		volumes[idx] += c.Volume
	}
	best := 0
	for i, v := range volumes {
		if v > volumes[best] {
			best = i
		}
	}
	return round4(low + step*(float64(best)+0.5))
}
