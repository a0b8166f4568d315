package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

type Settings struct {
	Symbol      string
	Interval    string
	EMA         EMASettings
	RSI         RSISettings
	MACD        MACDSettings
	SeriesLimit int // 每个指标序列最多保留的点数, 0 表示不截断
}

type EMASettings struct {
	Fast int `json:"fast,omitempty"`
	Mid  int `json:"mid,omitempty"`
	Slow int `json:"slow,omitempty"`
	Long int `json:"long,omitempty"`
}

type RSISettings struct {
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
}

type MACDSettings struct {
	Fast   int `json:"fast,omitempty"`
	Slow   int `json:"slow,omitempty"`
	Signal int `json:"signal,omitempty"`
}

type IndicatorValue struct {
	Latest float64   `json:"latest"`
	Series []float64 `json:"series,omitempty"`
	State  string    `json:"state,omitempty"`
	Note   string    `json:"note,omitempty"`
}

type Report struct {
	Symbol   string                    `json:"symbol"`
	Interval string                    `json:"interval"`
	Count    int                       `json:"count"`
	Values   map[string]IndicatorValue `json:"values"`
	Warnings []string                  `json:"warnings,omitempty"`
}

// minCandles 是固定周期指标不越界所需的最少样本数。
const minCandles = 30

// ComputeAll 对一段 K 线计算全部常用指标并汇总成报告。
func ComputeAll(candles []market.Candle, cfg Settings) (Report, error) {
	rep := Report{
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Count:    len(candles),
		Values:   make(map[string]IndicatorValue),
	}
	if len(candles) == 0 {
		return rep, fmt.Errorf("no candles")
	}
	if len(candles) < minCandles {
		return rep, fmt.Errorf("insufficient candles: %d < %d", len(candles), minCandles)
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	if cfg.EMA.Fast <= 0 {
		cfg.EMA.Fast = 21
	}
	if cfg.EMA.Mid <= 0 {
		cfg.EMA.Mid = 55
	}
	if cfg.EMA.Slow <= 0 {
		cfg.EMA.Slow = 100
	}
	if cfg.EMA.Long <= 0 {
		cfg.EMA.Long = 200
	}
	lastClose := closes[len(closes)-1]
	emaDefs := []struct {
		key    string
		period int
	}{
		{"ema_fast", cfg.EMA.Fast},
		{"ema_mid", cfg.EMA.Mid},
		{"ema_slow", cfg.EMA.Slow},
		{"ema_long", cfg.EMA.Long},
	}
	for _, def := range emaDefs {
		// talib.Ema 在样本少于周期时会越界
		if def.period > len(closes) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s requires %d candles", def.key, def.period))
			continue
		}
		series := trimEMALeadingZeros(sanitizeSeries(talib.Ema(closes, def.period)))
		rep.Values[def.key] = IndicatorValue{
			Latest: lastValid(series),
			Series: capSeries(series, cfg.SeriesLimit),
			State:  relativeState(lastClose, lastValid(series)),
			Note:   fmt.Sprintf("EMA%d vs price", def.period),
		}
	}

	if cfg.RSI.Period <= 0 {
		cfg.RSI.Period = 14
	}
	if cfg.RSI.Overbought == 0 {
		cfg.RSI.Overbought = 70
	}
	if cfg.RSI.Oversold == 0 {
		cfg.RSI.Oversold = 30
	}
	if cfg.RSI.Period < len(closes) {
		rsiSeries := sanitizeSeries(talib.Rsi(closes, cfg.RSI.Period))
		rsiVal := lastValid(rsiSeries)
		state := "neutral"
		switch {
		case rsiVal >= cfg.RSI.Overbought:
			state = "overbought"
		case rsiVal <= cfg.RSI.Oversold:
			state = "oversold"
		}
		rep.Values["rsi"] = IndicatorValue{
			Latest: rsiVal,
			Series: capSeries(rsiSeries, cfg.SeriesLimit),
			State:  state,
			Note:   fmt.Sprintf("period=%d thresholds=%.1f/%.1f", cfg.RSI.Period, cfg.RSI.Oversold, cfg.RSI.Overbought),
		}
	} else {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("rsi requires %d candles", cfg.RSI.Period+1))
	}

	if cfg.MACD.Fast <= 0 {
		cfg.MACD.Fast = 12
	}
	if cfg.MACD.Slow <= 0 {
		cfg.MACD.Slow = 26
	}
	if cfg.MACD.Signal <= 0 {
		cfg.MACD.Signal = 9
	}
	if cfg.MACD.Slow <= len(closes) {
		macd, signal, hist := talib.Macd(closes, cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal)
		macdSeries := sanitizeSeries(macd)
		signalSeries := sanitizeSeries(signal)
		histSeries := sanitizeSeries(hist)
		rep.Values["macd"] = IndicatorValue{
			Latest: lastValid(macdSeries),
			Series: capSeries(histSeries, cfg.SeriesLimit),
			State:  polarityState(lastValid(histSeries)),
			Note:   fmt.Sprintf("signal=%.4f hist=%.4f", lastValid(signalSeries), lastValid(histSeries)),
		}
	} else {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("macd requires %d candles", cfg.MACD.Slow))
	}

	rocSeries := sanitizeSeries(talib.Roc(closes, 9))
	rocVal := lastValid(rocSeries)
	rep.Values["roc"] = IndicatorValue{
		Latest: rocVal,
		Series: capSeries(rocSeries, cfg.SeriesLimit),
		State:  polarityState(rocVal),
		Note:   "period=9",
	}

	k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	kSeries := sanitizeSeries(k)
	dSeries := sanitizeSeries(d)
	rep.Values["stoch_k"] = IndicatorValue{
		Latest: lastValid(kSeries),
		Series: capSeries(kSeries, cfg.SeriesLimit),
		State:  stochasticState(lastValid(kSeries)),
		Note:   fmt.Sprintf("d=%.2f", lastValid(dSeries)),
	}

	will := sanitizeSeries(talib.WillR(highs, lows, closes, 14))
	rep.Values["williams_r"] = IndicatorValue{
		Latest: lastValid(will),
		Series: capSeries(will, cfg.SeriesLimit),
		State:  stochasticState(-lastValid(will)),
		Note:   "period=14",
	}

	atrSeries := sanitizeSeries(talib.Atr(highs, lows, closes, 14))
	rep.Values["atr"] = IndicatorValue{
		Latest: lastValid(atrSeries),
		Series: capSeries(atrSeries, cfg.SeriesLimit),
		State:  "volatility",
		Note:   "period=14",
	}

	obv := sanitizeSeries(talib.Obv(closes, volumes))
	rep.Values["obv"] = IndicatorValue{
		Latest: lastValid(obv),
		Series: capSeries(obv, cfg.SeriesLimit),
		State:  polarityState(rocVal),
		Note:   "volume thrust",
	}

	return rep, nil
}

func capSeries(series []float64, limit int) []float64 {
	if limit <= 0 || len(series) <= limit {
		return series
	}
	return series[len(series)-limit:]
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

// trimEMALeadingZeros 去掉 talib EMA 预热期输出的前导 0。
func trimEMALeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && almostZero(series[start]) {
		start++
	}
	return series[start:]
}

func almostZero(v float64) bool {
	return math.Abs(v) <= 1e-9
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func relativeState(price, ref float64) string {
	if ref == 0 {
		return "unknown"
	}
	switch {
	case price > ref*1.002:
		return "above"
	case price < ref*0.998:
		return "below"
	default:
		return "touch"
	}
}

func polarityState(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return "flat"
	}
}

func stochasticState(v float64) string {
	switch {
	case v >= 80:
		return "overbought"
	case v <= 20:
		return "oversold"
	default:
		return "neutral"
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
