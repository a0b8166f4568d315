package detector

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// BreakoutOptions 突破预测参数。零值字段取默认值。
type BreakoutOptions struct {
	VolumeLookback   int     // 均量回看窗口
	VolumeSpikeRatio float64 // 量能放大判定倍数
	RangeLookback    int     // 区间高低点回看窗口
	ProximityPct     float64 // 接近区间边缘的距离阈值(%)
	BodyLookback     int     // 实体均值回看窗口
	BodyAccelRatio   float64 // 实体加速判定倍数
	ATRPeriod        int
	ContractionRatio float64 // 近期 ATR / 历史 ATR 低于该值视为收敛
	ROCPeriod        int
	RSIPeriod        int
	FlowWindow       int // 资金流统计窗口
}

func (o BreakoutOptions) withDefaults() BreakoutOptions {
	if o.VolumeLookback <= 0 {
		o.VolumeLookback = 20
	}
	if o.VolumeSpikeRatio <= 0 {
		o.VolumeSpikeRatio = 2.0
	}
	if o.RangeLookback <= 0 {
		o.RangeLookback = 24
	}
	if o.ProximityPct <= 0 {
		o.ProximityPct = 1.0
	}
	if o.BodyLookback <= 0 {
		o.BodyLookback = 20
	}
	if o.BodyAccelRatio <= 0 {
		o.BodyAccelRatio = 1.5
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = 14
	}
	if o.ContractionRatio <= 0 {
		o.ContractionRatio = 0.8
	}
	if o.ROCPeriod <= 0 {
		o.ROCPeriod = 5
	}
	if o.RSIPeriod <= 0 {
		o.RSIPeriod = 14
	}
	if o.FlowWindow <= 0 {
		o.FlowWindow = 30
	}
	return o
}

// BreakoutSignal 单项突破信号,分数 0-100。
type BreakoutSignal struct {
	Name      string  `json:"name"`
	Direction string  `json:"direction"`
	Score     float64 `json:"score"`
	Value     float64 `json:"value"`
	Note      string  `json:"note,omitempty"`
}

// BreakoutReport 多信号汇总后的突破预测。
type BreakoutReport struct {
	Score      float64          `json:"score"`
	Direction  string           `json:"direction"`
	Strength   string           `json:"strength"`
	Confluence int              `json:"confluence"`
	Signals    []BreakoutSignal `json:"signals"`
	Time       int64            `json:"time"`
}

const (
	DirectionLong    = "long"
	DirectionShort   = "short"
	DirectionNeutral = "neutral"
)

const confluenceScore = 60.0

var signalWeights = map[string]float64{
	"volume_spike":      0.22,
	"range_proximity":   0.18,
	"body_acceleration": 0.14,
	"range_contraction": 0.10,
	"momentum_roc":      0.14,
	"rsi_cross":         0.12,
	"taker_flow":        0.10,
}

// PredictBreakout 对最近 K 线做突破预判:量能、位置、实体加速、波动收敛、动量、RSI 与资金流七项打分后加权汇总。
// 数据不足时返回空报告,Direction 为 neutral。
func PredictBreakout(candles []market.Candle, opts BreakoutOptions) BreakoutReport {
	opts = opts.withDefaults()
	report := BreakoutReport{Direction: DirectionNeutral, Strength: StrengthNone}
	minBars := opts.ATRPeriod + 2
	if opts.VolumeLookback+1 > minBars {
		minBars = opts.VolumeLookback + 1
	}
	if opts.RangeLookback+1 > minBars {
		minBars = opts.RangeLookback + 1
	}
	if len(candles) < minBars {
		return report
	}
	report.Time = candles[len(candles)-1].CloseTime

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	signals := []BreakoutSignal{
		volumeSpikeSignal(candles, opts),
		rangeProximitySignal(candles, opts),
		bodyAccelerationSignal(candles, opts),
		rangeContractionSignal(highs, lows, closes, opts),
		momentumSignal(closes, opts),
		rsiCrossSignal(closes, opts),
		takerFlowSignal(candles, opts),
	}
	report.Signals = signals

	var longs, shorts int
	var weighted, totalWeight float64
	for _, s := range signals {
		w := signalWeights[s.Name]
		weighted += s.Score * w
		totalWeight += w
		if s.Score < confluenceScore {
			continue
		}
		switch s.Direction {
		case DirectionLong:
			longs++
		case DirectionShort:
			shorts++
		}
	}
	if totalWeight > 0 {
		report.Score = round2(weighted / totalWeight)
	}
	switch {
	case longs > shorts:
		report.Direction = DirectionLong
		report.Confluence = longs
	case shorts > longs:
		report.Direction = DirectionShort
		report.Confluence = shorts
	default:
		report.Confluence = longs + shorts
	}
	report.Strength = classifyStrength(report.Score)
	return report
}

func volumeSpikeSignal(candles []market.Candle, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "volume_spike", Direction: DirectionNeutral}
	n := len(candles)
	lookback := opts.VolumeLookback
	if n < lookback+1 {
		return sig
	}
	var sum float64
	for i := n - lookback - 1; i < n-1; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return sig
	}
	last := candles[n-1]
	ratio := last.Volume / avg
	sig.Value = round2(ratio)
	sig.Score = round2(math.Min(ratio/opts.VolumeSpikeRatio, 1) * 100)
	if sig.Score >= confluenceScore {
		if last.IsBullish() {
			sig.Direction = DirectionLong
		} else {
			sig.Direction = DirectionShort
		}
	}
	return sig
}

func rangeProximitySignal(candles []market.Candle, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "range_proximity", Direction: DirectionNeutral}
	n := len(candles)
	lookback := opts.RangeLookback
	if n < lookback+1 {
		return sig
	}
	// 区间取最后一根之前的 lookback 根,当前收盘与边缘比较
	rangeHigh := candles[n-lookback-1].High
	rangeLow := candles[n-lookback-1].Low
	for i := n - lookback; i < n-1; i++ {
		if candles[i].High > rangeHigh {
			rangeHigh = candles[i].High
		}
		if candles[i].Low < rangeLow {
			rangeLow = candles[i].Low
		}
	}
	if rangeHigh <= rangeLow {
		return sig
	}
	last := candles[n-1].Close
	upPct := (rangeHigh - last) / rangeHigh * 100
	downPct := (last - rangeLow) / rangeLow * 100
	if upPct <= downPct {
		sig.Value = round2(upPct)
		sig.Score = proximityScore(upPct, opts.ProximityPct)
		if sig.Score >= confluenceScore {
			sig.Direction = DirectionLong
			sig.Note = "接近区间上沿"
		}
	} else {
		sig.Value = round2(downPct)
		sig.Score = proximityScore(downPct, opts.ProximityPct)
		if sig.Score >= confluenceScore {
			sig.Direction = DirectionShort
			sig.Note = "接近区间下沿"
		}
	}
	return sig
}

// proximityScore 距离为 0 得满分,超过 3 倍阈值降为 0。
func proximityScore(distPct, thresholdPct float64) float64 {
	if distPct < 0 {
		distPct = 0
	}
	limit := thresholdPct * 3
	if distPct >= limit {
		return 0
	}
	return round2((1 - distPct/limit) * 100)
}

func bodyAccelerationSignal(candles []market.Candle, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "body_acceleration", Direction: DirectionNeutral}
	n := len(candles)
	lookback := opts.BodyLookback
	if n < lookback+1 {
		return sig
	}
	var sum float64
	for i := n - lookback - 1; i < n-1; i++ {
		sum += candles[i].Body()
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return sig
	}
	last := candles[n-1]
	ratio := last.Body() / avg
	sig.Value = round2(ratio)
	sig.Score = round2(math.Min(ratio/opts.BodyAccelRatio, 1) * 100)
	if sig.Score >= confluenceScore {
		if last.IsBullish() {
			sig.Direction = DirectionLong
		} else {
			sig.Direction = DirectionShort
		}
	}
	return sig
}

func rangeContractionSignal(highs, lows, closes []float64, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "range_contraction", Direction: DirectionNeutral}
	atr := talib.Atr(highs, lows, closes, opts.ATRPeriod)
	recent := tailMean(atr, 5)
	historical := tailMean(atr, opts.ATRPeriod*2)
	if recent <= 0 || historical <= 0 {
		return sig
	}
	ratio := recent / historical
	sig.Value = round2(ratio)
	if ratio >= opts.ContractionRatio {
		return sig
	}
	// 收敛越深分数越高,方向由后续突破信号决定
	sig.Score = round2(math.Min((opts.ContractionRatio-ratio)/opts.ContractionRatio*2, 1) * 100)
	sig.Note = "波动收敛"
	return sig
}

func momentumSignal(closes []float64, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "momentum_roc", Direction: DirectionNeutral}
	roc := talib.Roc(closes, opts.ROCPeriod)
	v, ok := lastFinite(roc)
	if !ok {
		return sig
	}
	sig.Value = round2(v)
	sig.Score = round2(math.Min(math.Abs(v)/3, 1) * 100)
	if sig.Score < confluenceScore {
		return sig
	}
	if v > 0 {
		sig.Direction = DirectionLong
	} else {
		sig.Direction = DirectionShort
	}
	return sig
}

func rsiCrossSignal(closes []float64, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "rsi_cross", Direction: DirectionNeutral}
	rsi := talib.Rsi(closes, opts.RSIPeriod)
	if len(rsi) < 2 {
		return sig
	}
	last := rsi[len(rsi)-1]
	prev := rsi[len(rsi)-2]
	if !isFinite(last) || !isFinite(prev) {
		return sig
	}
	sig.Value = round2(last)
	switch {
	case prev < 50 && last >= 50:
		sig.Direction = DirectionLong
		sig.Score = round2(math.Min(60+(last-50)*4, 100))
		sig.Note = "RSI 上穿 50"
	case prev > 50 && last <= 50:
		sig.Direction = DirectionShort
		sig.Score = round2(math.Min(60+(50-last)*4, 100))
		sig.Note = "RSI 下穿 50"
	}
	return sig
}

func takerFlowSignal(candles []market.Candle, opts BreakoutOptions) BreakoutSignal {
	sig := BreakoutSignal{Name: "taker_flow", Direction: DirectionNeutral}
	n := len(candles)
	window := opts.FlowWindow
	if window > n {
		window = n
	}
	tail := candles[n-window:]
	hasFlow := false
	for _, c := range tail {
		if c.TakerBuyVolume > 0 || c.TakerSellVolume > 0 {
			hasFlow = true
			break
		}
	}
	// 没有 taker 数据的序列不参与打分
	if !hasFlow {
		return sig
	}
	metrics, ok := market.ComputeFlow(tail)
	if !ok {
		return sig
	}
	buyRatio := metrics.BuyRatio.InexactFloat64()
	normalized := metrics.Normalized.InexactFloat64()
	sig.Value = round2(buyRatio)
	ratioScore := math.Min(math.Abs(buyRatio-0.5)/0.2, 1) * 100
	posScore := math.Min(math.Abs(normalized-0.5)*2, 1) * 100
	sig.Score = round2(0.5*ratioScore + 0.5*posScore)
	if sig.Score < confluenceScore {
		return sig
	}
	switch {
	case buyRatio > 0.5 && normalized >= 0.5:
		sig.Direction = DirectionLong
		sig.Note = "主动买盘主导"
	case buyRatio < 0.5 && normalized <= 0.5:
		sig.Direction = DirectionShort
		sig.Note = "主动卖盘主导"
	default:
		// 买卖比与 CVD 位置矛盾时不给方向,分数减半
		sig.Score = round2(sig.Score / 2)
	}
	return sig
}

const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
	StrengthNone     = "none"
)

func classifyStrength(score float64) string {
	switch {
	case score >= 80:
		return StrengthStrong
	case score >= 60:
		return StrengthModerate
	case score >= 40:
		return StrengthWeak
	default:
		return StrengthNone
	}
}
