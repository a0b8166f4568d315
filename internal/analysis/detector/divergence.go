package detector

import (
	"github.com/markcheno/go-talib"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// DivergenceOptions 背离扫描参数。零值字段取默认值。
type DivergenceOptions struct {
	PivotSpan  int // 枢轴两侧需要的 K 线数
	MaxPivots  int // 每侧最多回看的枢轴数
	MaxBars    int // 背离跨度上限
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	RSIPeriod  int
	MFIPeriod  int
}

func (o DivergenceOptions) withDefaults() DivergenceOptions {
	if o.PivotSpan <= 0 {
		o.PivotSpan = 5
	}
	if o.MaxPivots <= 0 {
		o.MaxPivots = 10
	}
	if o.MaxBars <= 0 {
		o.MaxBars = 100
	}
	if o.MACDFast <= 0 {
		o.MACDFast = 12
	}
	if o.MACDSlow <= 0 {
		o.MACDSlow = 26
	}
	if o.MACDSignal <= 0 {
		o.MACDSignal = 9
	}
	if o.RSIPeriod <= 0 {
		o.RSIPeriod = 14
	}
	if o.MFIPeriod <= 0 {
		o.MFIPeriod = 14
	}
	return o
}

const (
	DivBull       = "bull"
	DivBear       = "bear"
	DivHiddenBull = "hidden_bull"
	DivHiddenBear = "hidden_bear"
)

// DivergenceSignal 价格与某个指标之间的一次背离。
// Distance 为背离连线跨越的 K 线数。
type DivergenceSignal struct {
	Indicator string `json:"indicator"`
	Type      string `json:"type"`
	Distance  int    `json:"distance"`
}

type pivot struct {
	index int
	value float64
}

// DetectDivergences 用收盘价枢轴在 MACD/RSI/OBV/MFI 等指标上扫描常规与隐藏背离。
// 背离要求末端出现回转迹象,且连线之间的走势未被穿越。
func DetectDivergences(candles []market.Candle, opts DivergenceOptions) []DivergenceSignal {
	opts = opts.withDefaults()
	if len(candles) < opts.PivotSpan*2+2 {
		return nil
	}
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	lowPivots := findPivots(closes, opts.PivotSpan, false, opts.MaxPivots)
	highPivots := findPivots(closes, opts.PivotSpan, true, opts.MaxPivots)
	if len(lowPivots) == 0 && len(highPivots) == 0 {
		return nil
	}

	macd, _, hist := talib.Macd(closes, opts.MACDFast, opts.MACDSlow, opts.MACDSignal)
	sources := []struct {
		name   string
		series []float64
	}{
		{"macd", macd},
		{"macd_hist", hist},
		{"rsi", talib.Rsi(closes, opts.RSIPeriod)},
		{"obv", talib.Obv(closes, volumes)},
		{"mfi", talib.Mfi(highs, lows, closes, volumes, opts.MFIPeriod)},
	}
	checks := []struct {
		typ     string
		bullish bool
		hidden  bool
		pivots  []pivot
	}{
		{DivBull, true, false, lowPivots},
		{DivBear, false, false, highPivots},
		{DivHiddenBull, true, true, lowPivots},
		{DivHiddenBear, false, true, highPivots},
	}

	var out []DivergenceSignal
	for _, src := range sources {
		if len(src.series) == 0 {
			continue
		}
		for _, c := range checks {
			if span := scanDivergence(src.series, closes, c.pivots, c.bullish, c.hidden, opts); span > 0 {
				out = append(out, DivergenceSignal{Indicator: src.name, Type: c.typ, Distance: span})
			}
		}
	}
	return out
}

// findPivots 自右向左收集枢轴,等值视为同一枢轴的一部分。
func findPivots(series []float64, span int, high bool, max int) []pivot {
	if len(series) < span*2+1 || span <= 0 || max <= 0 {
		return nil
	}
	out := make([]pivot, 0, max)
	for i := len(series) - 1 - span; i >= span; i-- {
		if !pivotAt(series, i, span, high) {
			continue
		}
		out = append(out, pivot{index: i, value: series[i]})
		if len(out) >= max {
			break
		}
	}
	return out
}

func pivotAt(series []float64, idx, span int, high bool) bool {
	if idx-span < 0 || idx+span >= len(series) {
		return false
	}
	center := series[idx]
	if !isFinite(center) {
		return false
	}
	for i := idx - span; i <= idx+span; i++ {
		if i == idx {
			continue
		}
		v := series[i]
		if !isFinite(v) {
			return false
		}
		if high && v > center {
			return false
		}
		if !high && v < center {
			return false
		}
	}
	return true
}

// scanDivergence 在上一根已收 K 线与历史枢轴之间找背离,返回跨度,未找到返回 0。
// 常规看多: 价创新低而指标抬高;隐藏背离翻转两侧条件。
func scanDivergence(src, closes []float64, pivots []pivot, bullish, hidden bool, opts DivergenceOptions) int {
	if len(src) == 0 || len(closes) == 0 || len(pivots) == 0 {
		return 0
	}
	s0, ok0 := tailAt(src, 0)
	s1, ok1 := tailAt(src, 1)
	c0, ok2 := tailAt(closes, 0)
	c1, ok3 := tailAt(closes, 1)
	if !(ok0 && ok1 && ok2 && ok3) {
		return 0
	}
	// 末根未回转的背离不算确认
	if bullish && !(s0 > s1 || c0 > c1) {
		return 0
	}
	if !bullish && !(s0 < s1 || c0 < c1) {
		return 0
	}

	lastIdx := len(closes) - 1
	for _, pv := range pivots {
		if pv.index <= 0 {
			break
		}
		span := lastIdx - pv.index
		if span > opts.MaxBars {
			break
		}
		if span <= opts.PivotSpan {
			continue
		}
		srcNow, okA := tailAt(src, 1)
		srcThen, okB := tailAt(src, span)
		priceNow, okC := tailAt(closes, 1)
		if !(okA && okB && okC && isFinite(pv.value)) {
			continue
		}
		var match bool
		switch {
		case bullish && !hidden:
			match = srcNow > srcThen && priceNow < pv.value
		case bullish && hidden:
			match = srcNow < srcThen && priceNow > pv.value
		case !bullish && !hidden:
			match = srcNow < srcThen && priceNow > pv.value
		default:
			match = srcNow > srcThen && priceNow < pv.value
		}
		if !match {
			continue
		}
		if lineHolds(src, closes, span, bullish) {
			return span
		}
	}
	return 0
}

// lineHolds 检查两端连线之间的走势未穿越连线: 看多时指标与收盘都运行在连线上方,看空时在下方。
func lineHolds(src, closes []float64, span int, bullish bool) bool {
	if span-1 <= 0 {
		return false
	}
	srcNow, ok1 := tailAt(src, 1)
	srcThen, ok2 := tailAt(src, span)
	closeNow, ok3 := tailAt(closes, 1)
	closeThen, ok4 := tailAt(closes, span)
	if !(ok1 && ok2 && ok3 && ok4) {
		return false
	}
	srcStep := (srcNow - srcThen) / float64(span-1)
	closeStep := (closeNow - closeThen) / float64(span-1)
	srcLine := srcNow - srcStep
	closeLine := closeNow - closeStep
	for y := 2; y <= span-1; y++ {
		srcY, okY := tailAt(src, y)
		closeY, okC := tailAt(closes, y)
		if !(okY && okC) {
			return false
		}
		if bullish && (srcY < srcLine || closeY < closeLine) {
			return false
		}
		if !bullish && (srcY > srcLine || closeY > closeLine) {
			return false
		}
		srcLine -= srcStep
		closeLine -= closeStep
	}
	return true
}

// tailAt 取距末端 barsAgo 根处的值,越界或非有限值时 ok 为 false。
func tailAt(series []float64, barsAgo int) (float64, bool) {
	if barsAgo < 0 || len(series) == 0 {
		return 0, false
	}
	idx := len(series) - 1 - barsAgo
	if idx < 0 {
		return 0, false
	}
	v := series[idx]
	if !isFinite(v) {
		return 0, false
	}
	return v, true
}
