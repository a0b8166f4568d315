package detector

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// LevelOptions 支撑压力位识别参数。零值字段取默认值。
type LevelOptions struct {
	DonchianPeriod int     // 唐奇安通道周期
	FractalSpan    int     // 局部极值两侧需要的 K 线数
	MaxLevels      int     // 每侧保留的价位上限
	ATRPeriod      int
	DedupATRFactor float64 // 价差小于 ATR*系数 的同侧价位合并
	TouchATRFactor float64 // 触碰判定距离 = ATR*系数
}

func (o LevelOptions) withDefaults() LevelOptions {
	if o.DonchianPeriod <= 0 {
		o.DonchianPeriod = 20
	}
	if o.FractalSpan <= 0 {
		o.FractalSpan = 2
	}
	if o.MaxLevels <= 0 {
		o.MaxLevels = 4
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = 14
	}
	if o.DedupATRFactor <= 0 {
		o.DedupATRFactor = 0.5
	}
	if o.TouchATRFactor <= 0 {
		o.TouchATRFactor = 0.25
	}
	return o
}

// Channel 唐奇安通道。
type Channel struct {
	Upper  float64 `json:"upper"`  // 周期内最高价
	Lower  float64 `json:"lower"`  // 周期内最低价
	Middle float64 `json:"middle"` // 通道中轨
	Period int     `json:"period"`
}

const (
	LevelSupport    = "support"
	LevelResistance = "resistance"
)

// Level 由局部极值聚合出的水平价位。Touches 为窗口内触碰次数,
// AgeBars 为最近一次触碰距窗口末端的 K 线数。
type Level struct {
	Price      float64 `json:"price"`
	Kind       string  `json:"kind"`
	Touches    int     `json:"touches"`
	FirstIndex int     `json:"first_index"`
	LastIndex  int     `json:"last_index"`
	AgeBars    int     `json:"age_bars"`
	Strength   float64 `json:"strength"`
}

// LevelReport 通道与关键价位汇总。
type LevelReport struct {
	Channel Channel `json:"channel"`
	Levels  []Level `json:"levels"`
}

// DetectLevels 计算唐奇安通道,并从局部高低点聚合支撑压力位。
// 同侧价差小于 ATR*DedupATRFactor 的极值合并为一个价位,按触碰次数计强度。
func DetectLevels(candles []market.Candle, opts LevelOptions) LevelReport {
	opts = opts.withDefaults()
	n := len(candles)
	report := LevelReport{}
	if n == 0 {
		return report
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	report.Channel = donchian(highs, lows, opts.DonchianPeriod)

	if n < opts.FractalSpan*2+1 {
		return report
	}
	var atrLast float64
	if n > opts.ATRPeriod {
		atrLast, _ = lastFinite(talib.Atr(highs, lows, closes, opts.ATRPeriod))
	}
	if atrLast <= 0 {
		// ATR 不可用时退化为通道高度的 1%
		atrLast = (report.Channel.Upper - report.Channel.Lower) / 100
	}

	resistances := collectLevels(highs, opts, LevelResistance, atrLast)
	supports := collectLevels(lows, opts, LevelSupport, atrLast)
	for i := range resistances {
		countTouches(&resistances[i], highs, atrLast*opts.TouchATRFactor)
	}
	for i := range supports {
		countTouches(&supports[i], lows, atrLast*opts.TouchATRFactor)
	}

	lastClose := closes[n-1]
	levels := append(resistances, supports...)
	for i := range levels {
		levels[i].AgeBars = n - 1 - levels[i].LastIndex
		// 相对最新收盘重新定性: 上方为压力,下方为支撑,被跌破的支撑转为压力
		switch {
		case levels[i].Price > lastClose:
			levels[i].Kind = LevelResistance
		case levels[i].Price < lastClose:
			levels[i].Kind = LevelSupport
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	report.Levels = levels
	return report
}

func donchian(highs, lows []float64, period int) Channel {
	n := len(highs)
	if n == 0 {
		return Channel{Period: period}
	}
	start := n - period
	if start < 0 {
		start = 0
	}
	upper := highs[start]
	lower := lows[start]
	for i := start + 1; i < n; i++ {
		if highs[i] > upper {
			upper = highs[i]
		}
		if lows[i] < lower {
			lower = lows[i]
		}
	}
	return Channel{
		Upper:  round4(upper),
		Lower:  round4(lower),
		Middle: round4((upper + lower) / 2),
		Period: period,
	}
}

// collectLevels 自右向左扫描局部极值,就近合并后返回不超过 MaxLevels 个价位。
func collectLevels(series []float64, opts LevelOptions, kind string, atr float64) []Level {
	n := len(series)
	span := opts.FractalSpan
	threshold := atr * opts.DedupATRFactor
	var out []Level
	for idx := n - span - 1; idx >= span; idx-- {
		if kind == LevelResistance && !isLocalHigh(series, idx, span) {
			continue
		}
		if kind == LevelSupport && !isLocalLow(series, idx, span) {
			continue
		}
		cand := Level{Price: round4(series[idx]), Kind: kind, FirstIndex: idx, LastIndex: idx}
		out = mergeLevel(out, cand, threshold, opts.MaxLevels)
	}
	return out
}

// mergeLevel 压力位合并时保留更高价,支撑位保留更低价,索引区间取并集。
func mergeLevel(existing []Level, cand Level, threshold float64, maxLevels int) []Level {
	for i := range existing {
		if math.Abs(existing[i].Price-cand.Price) >= threshold {
			continue
		}
		if cand.Kind == LevelResistance && cand.Price > existing[i].Price {
			existing[i].Price = cand.Price
		}
		if cand.Kind == LevelSupport && cand.Price < existing[i].Price {
			existing[i].Price = cand.Price
		}
		if cand.FirstIndex < existing[i].FirstIndex {
			existing[i].FirstIndex = cand.FirstIndex
		}
		if cand.LastIndex > existing[i].LastIndex {
			existing[i].LastIndex = cand.LastIndex
		}
		return existing
	}
	if len(existing) >= maxLevels {
		return existing
	}
	return append(existing, cand)
}

// countTouches 统计窗口内进入触碰带的次数,连续触碰只记一次。
func countTouches(lv *Level, series []float64, tolerance float64) {
	if tolerance <= 0 {
		tolerance = lv.Price * 0.001
	}
	inTouch := false
	for i, v := range series {
		if math.Abs(v-lv.Price) <= tolerance {
			if !inTouch {
				lv.Touches++
				if i > lv.LastIndex {
					lv.LastIndex = i
				}
			}
			inTouch = true
		} else {
			inTouch = false
		}
	}
	lv.Strength = round2(math.Min(float64(lv.Touches)/4, 1) * 100)
}

func isLocalHigh(series []float64, idx, span int) bool {
	v := series[idx]
	for i := 1; i <= span; i++ {
		if v <= series[idx-i] || v <= series[idx+i] {
			return false
		}
	}
	return true
}

func isLocalLow(series []float64, idx, span int) bool {
	v := series[idx]
	for i := 1; i <= span; i++ {
		if v >= series[idx-i] || v >= series[idx+i] {
			return false
		}
	}
	return true
}
