package market

import "github.com/shopspring/decimal"

// flowLookback 动量/背离比较使用的回看根数。
const flowLookback = 6

// FlowMetrics 描述一段 K 线窗口内的主动买卖资金流。
type FlowMetrics struct {
	CVD        decimal.Decimal `json:"cvd"`
	Momentum   decimal.Decimal `json:"momentum"`
	Normalized decimal.Decimal `json:"normalized"`
	BuyRatio   decimal.Decimal `json:"buy_ratio"`
	Divergence string          `json:"divergence"`
	Turn       string          `json:"turn"`
}

// ComputeFlow 基于 taker 买卖量计算窗口内的 CVD 快照。
// 各字段含义：
//   - CVD: 窗口内 (taker_buy - taker_sell) 的累计和。
//   - Momentum: 当前 CVD 与 flowLookback 根之前的差值（数据不足时为 0）。
//   - Normalized: (CVD - min) / (max - min)，序列走平时取 0.5。
//   - BuyRatio: 主动买量占总量的比例，总量为 0 时取 0.5。
//   - Divergence: 价涨而 CVD 跌记 "down"，价跌而 CVD 涨记 "up"，否则 "neutral"。
//   - Turn: 末端三点构成局部峰记 "local_top"，构成局部谷记 "local_bottom"，否则 "none"。
func ComputeFlow(candles []Candle) (FlowMetrics, bool) {
	if len(candles) == 0 {
		return FlowMetrics{}, false
	}
	cvd := make([]decimal.Decimal, 0, len(candles))
	closes := make([]decimal.Decimal, 0, len(candles))
	cumulative := decimal.Zero
	totalBuy := decimal.Zero
	totalVol := decimal.Zero
	for _, c := range candles {
		buy := decimal.NewFromFloat(c.TakerBuyVolume)
		sell := decimal.NewFromFloat(c.TakerSellVolume)
		cumulative = cumulative.Add(buy.Sub(sell))
		cvd = append(cvd, cumulative)
		closes = append(closes, decimal.NewFromFloat(c.Close))
		totalBuy = totalBuy.Add(buy)
		totalVol = totalVol.Add(decimal.NewFromFloat(c.Volume))
	}

	last := cvd[len(cvd)-1]
	momentum := decimal.Zero
	if len(cvd) > flowLookback {
		momentum = last.Sub(cvd[len(cvd)-flowLookback])
	}

	minVal := cvd[0]
	maxVal := cvd[0]
	for _, v := range cvd[1:] {
		if v.LessThan(minVal) {
			minVal = v
		}
		if v.GreaterThan(maxVal) {
			maxVal = v
		}
	}

	norm := decimal.NewFromFloat(0.5)
	if maxVal.GreaterThan(minVal) {
		norm = last.Sub(minVal).Div(maxVal.Sub(minVal))
	}

	buyRatio := decimal.NewFromFloat(0.5)
	if totalVol.GreaterThan(decimal.Zero) {
		buyRatio = totalBuy.Div(totalVol)
	}

	priceNow := closes[len(closes)-1]
	pricePrev := closes[0]
	cvdPrev := cvd[0]
	if len(closes) > flowLookback {
		pricePrev = closes[len(closes)-flowLookback]
		cvdPrev = cvd[len(cvd)-flowLookback]
	}

	divergence := "neutral"
	if priceNow.GreaterThan(pricePrev) && last.LessThan(cvdPrev) {
		divergence = "down"
	} else if priceNow.LessThan(pricePrev) && last.GreaterThan(cvdPrev) {
		divergence = "up"
	}

	turn := "none"
	if len(cvd) > 3 {
		a := cvd[len(cvd)-1]
		b := cvd[len(cvd)-2]
		c := cvd[len(cvd)-3]
		if a.LessThan(b) && b.GreaterThan(c) {
			turn = "local_top"
		} else if a.GreaterThan(b) && b.LessThan(c) {
			turn = "local_bottom"
		}
	}

	return FlowMetrics{
		CVD:        last,
		Momentum:   momentum,
		Normalized: norm,
		BuyRatio:   buyRatio,
		Divergence: divergence,
		Turn:       turn,
	}, true
}
