package chanlun

import "github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"

// MergeInclusion 消除相邻 K 线的包含关系，返回供后续阶段使用的合并序列。
// 输入须按 open_time 升序；首根 K 线原样入列，之后每根原始 K 线与最后一根
// 合并 K 线比较：互不包含则直接追加并刷新运行方向（比较最新两根合并 K 线
// 的最高价，严格更高记 up，严格更低记 down，持平沿用前值）；存在包含则就地
// 合并：上行方向取双高的较大值与双低的较大值，open_time 取最高价更高的那
// 根；下行方向对称取较小值，open_time 取最低价更低的那根。成交量与成交笔数
// 累加，MergedCount 递增。
func MergeInclusion(candles []market.Candle) []MergedCandle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]MergedCandle, 0, len(candles))
	trend := DirectionUp
	out = append(out, MergedCandle{Candle: candles[0], MergedCount: 1, Trend: trend})

	for _, c := range candles[1:] {
		last := &out[len(out)-1]
		lastContains := last.High >= c.High && last.Low <= c.Low
		curContains := c.High >= last.High && c.Low <= last.Low

		if !lastContains && !curContains {
			out = append(out, MergedCandle{Candle: c, MergedCount: 1})
			n := len(out)
			if out[n-1].High > out[n-2].High {
				trend = DirectionUp
			} else if out[n-1].High < out[n-2].High {
				trend = DirectionDown
			}
			out[n-1].Trend = trend
			continue
		}

		if trend == DirectionUp {
			if c.High > last.High {
				last.High = c.High
				last.OpenTime = c.OpenTime
				last.Open = c.Open
			}
			if c.Low > last.Low {
				last.Low = c.Low
			}
		} else {
			if c.Low < last.Low {
				last.Low = c.Low
				last.OpenTime = c.OpenTime
				last.Open = c.Open
			}
			if c.High < last.High {
				last.High = c.High
			}
		}
		last.CloseTime = c.CloseTime
		last.Close = c.Close
		last.Volume += c.Volume
		last.Trades += c.Trades
		last.TakerBuyVolume += c.TakerBuyVolume
		last.TakerSellVolume += c.TakerSellVolume
		last.MergedCount++
		last.Trend = trend
	}
	return out
}
