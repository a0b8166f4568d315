package indicator

import (
	"testing"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

func rampCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		c := 100.0 + float64(i)
		out[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func TestComputeAllEmpty(t *testing.T) {
	if _, err := ComputeAll(nil, Settings{}); err == nil {
		t.Fatal("空序列应返回错误")
	}
}

func TestComputeAllKeys(t *testing.T) {
	rep, err := ComputeAll(rampCandles(250), Settings{Symbol: "BTCUSDT", Interval: "1m"})
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}
	if rep.Symbol != "BTCUSDT" || rep.Interval != "1m" || rep.Count != 250 {
		t.Fatalf("报告头应带回标的与区间, 实际=%+v", rep)
	}
	keys := []string{"ema_fast", "ema_mid", "ema_slow", "ema_long", "rsi", "macd", "roc", "stoch_k", "williams_r", "atr", "obv"}
	for _, k := range keys {
		if _, ok := rep.Values[k]; !ok {
			t.Fatalf("缺少指标 %s", k)
		}
	}
	if len(rep.Values) != len(keys) {
		t.Fatalf("指标数应为 %d, 实际=%d", len(keys), len(rep.Values))
	}
}

func TestComputeAllStatesOnUptrend(t *testing.T) {
	rep, err := ComputeAll(rampCandles(250), Settings{})
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}
	if got := rep.Values["rsi"]; got.State != "overbought" {
		t.Fatalf("单边上行的 RSI 应为 overbought, 实际=%s (%.2f)", got.State, got.Latest)
	}
	if got := rep.Values["roc"]; got.State != "positive" {
		t.Fatalf("上行序列的 ROC 应为 positive, 实际=%s", got.State)
	}
	if got := rep.Values["stoch_k"]; got.State != "overbought" {
		t.Fatalf("收盘贴近区间顶部时 KD 应为 overbought, 实际=%s (%.2f)", got.State, got.Latest)
	}
	for _, key := range []string{"ema_fast", "ema_mid", "ema_slow", "ema_long"} {
		if got := rep.Values[key]; got.State != "above" {
			t.Fatalf("上行序列收盘应在 %s 上方, 实际=%s", key, got.State)
		}
	}
	if got := rep.Values["atr"]; got.Latest <= 0 {
		t.Fatalf("ATR 应为正, 实际=%v", got.Latest)
	}
}

func TestComputeAllSeriesLimit(t *testing.T) {
	rep, err := ComputeAll(rampCandles(250), Settings{SeriesLimit: 50})
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}
	for key, v := range rep.Values {
		if len(v.Series) > 50 {
			t.Fatalf("%s 序列应被截断到 50, 实际=%d", key, len(v.Series))
		}
		if n := len(v.Series); n > 0 && v.Series[n-1] != v.Latest {
			t.Fatalf("%s 截断后末值应与 Latest 一致, 实际=%v vs %v", key, v.Series[n-1], v.Latest)
		}
	}
}

func TestComputeAllShortSeries(t *testing.T) {
	if _, err := ComputeAll(rampCandles(10), Settings{}); err == nil {
		t.Fatal("样本过少应返回错误")
	}

	rep, err := ComputeAll(rampCandles(30), Settings{})
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}
	// 预热不足的长周期 EMA 被跳过并留下警告
	if _, ok := rep.Values["ema_long"]; ok {
		t.Fatal("样本不足时不应输出 ema_long")
	}
	if _, ok := rep.Values["ema_fast"]; !ok {
		t.Fatal("短周期 EMA 应正常计算")
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("被跳过的指标应记录警告")
	}
}

func TestCapSeries(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5}
	if got := capSeries(src, 3); len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("截断应保留末尾 3 个值, 实际=%v", got)
	}
	if got := capSeries(src, 0); len(got) != 5 {
		t.Fatalf("limit=0 不应截断, 实际=%v", got)
	}
	if got := capSeries(src, 10); len(got) != 5 {
		t.Fatalf("limit 超长时不应截断, 实际=%v", got)
	}
}

func TestTrimEMALeadingZeros(t *testing.T) {
	got := trimEMALeadingZeros([]float64{0, 0, 1.5, 0, 2})
	if len(got) != 3 || got[0] != 1.5 {
		t.Fatalf("应只去掉前导 0, 实际=%v", got)
	}
}

func TestRelativeState(t *testing.T) {
	if got := relativeState(101, 100); got != "above" {
		t.Fatalf("101 vs 100 应为 above, 实际=%s", got)
	}
	if got := relativeState(99, 100); got != "below" {
		t.Fatalf("99 vs 100 应为 below, 实际=%s", got)
	}
	if got := relativeState(100.1, 100); got != "touch" {
		t.Fatalf("0.2%% 以内应为 touch, 实际=%s", got)
	}
	if got := relativeState(100, 0); got != "unknown" {
		t.Fatalf("参考值为 0 应为 unknown, 实际=%s", got)
	}
}

func TestPolarityAndStochState(t *testing.T) {
	if polarityState(1) != "positive" || polarityState(-1) != "negative" || polarityState(0) != "flat" {
		t.Fatal("polarityState 判定错误")
	}
	if stochasticState(85) != "overbought" || stochasticState(15) != "oversold" || stochasticState(50) != "neutral" {
		t.Fatal("stochasticState 判定错误")
	}
}
