package market

import "testing"

func flowBar(close, buy, sell float64) Candle {
	return Candle{
		Close:           close,
		Volume:          buy + sell,
		TakerBuyVolume:  buy,
		TakerSellVolume: sell,
	}
}

func TestComputeFlowEmpty(t *testing.T) {
	if _, ok := ComputeFlow(nil); ok {
		t.Fatalf("空序列应返回 ok=false")
	}
}

func TestComputeFlowBuyDominant(t *testing.T) {
	candles := []Candle{
		flowBar(100, 10, 2),
		flowBar(100, 8, 2),
		flowBar(100, 12, 2),
	}
	m, ok := ComputeFlow(candles)
	if !ok {
		t.Fatalf("ComputeFlow 应成功")
	}
	if got := m.CVD.InexactFloat64(); got != 24 {
		t.Fatalf("CVD 应为 24, 实际=%v", got)
	}
	if m.BuyRatio.InexactFloat64() <= 0.5 {
		t.Fatalf("买方主导时 BuyRatio 应大于 0.5, 实际=%v", m.BuyRatio)
	}
	if m.Divergence != "neutral" {
		t.Fatalf("价格走平时不应报背离, 实际=%q", m.Divergence)
	}
	if m.Turn != "none" {
		t.Fatalf("不足四根时 Turn 应为 none, 实际=%q", m.Turn)
	}
	if !m.Momentum.IsZero() {
		t.Fatalf("数据不足回看窗口时 Momentum 应为 0, 实际=%v", m.Momentum)
	}
}

func TestComputeFlowDivergenceAndTurn(t *testing.T) {
	// 价格一路上行而 CVD 冲高回落: 背离向下 + 局部顶
	candles := []Candle{
		flowBar(100, 10, 0),
		flowBar(101, 5, 0),
		flowBar(102, 8, 0),
		flowBar(103, 0, 20),
	}
	m, ok := ComputeFlow(candles)
	if !ok {
		t.Fatalf("ComputeFlow 应成功")
	}
	if got := m.CVD.InexactFloat64(); got != 3 {
		t.Fatalf("CVD 应为 3, 实际=%v", got)
	}
	if m.Divergence != "down" {
		t.Fatalf("价涨量缩应报 down 背离, 实际=%q", m.Divergence)
	}
	if m.Turn != "local_top" {
		t.Fatalf("CVD 冲高回落应报 local_top, 实际=%q", m.Turn)
	}
	if got := m.Normalized.InexactFloat64(); got != 0 {
		t.Fatalf("末端为窗口最低点时 Normalized 应为 0, 实际=%v", got)
	}
}

func TestComputeFlowFlatSeries(t *testing.T) {
	candles := []Candle{
		flowBar(100, 5, 5),
		flowBar(100, 5, 5),
	}
	m, _ := ComputeFlow(candles)
	if got := m.Normalized.InexactFloat64(); got != 0.5 {
		t.Fatalf("CVD 走平时 Normalized 应取 0.5, 实际=%v", got)
	}
	if got := m.BuyRatio.InexactFloat64(); got != 0.5 {
		t.Fatalf("买卖均衡时 BuyRatio 应为 0.5, 实际=%v", got)
	}
}
