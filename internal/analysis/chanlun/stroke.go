package chanlun

import "fmt"

// BuildStrokes 把交替分型序列连接为笔。
// 以当前分型为起点（底分型起上行笔，顶分型起下行笔），向后收集所有满足
// 三个结构条件的异型候选：价格沿笔方向突破起点、两端分型所在 K 线区间
// 互不包含、K 线跨度不小于 cfg.MinStrokeBars。无候选则起点后移一位；
// 有候选时按贪婪极值规则选取：上行取价格最高者、下行取最低者（并非
// 最近者），价格并列时保留更早出现的。选中的终点分型随即成为下一笔的
// 起点，被跳过的分型不再单独作为起点考察。
func BuildStrokes(fractals []Fractal, merged []MergedCandle, cfg Config) []Stroke {
	final := cfg.withDefaults()
	if len(fractals) < 2 {
		return nil
	}
	var strokes []Stroke
	i := 0
	for i < len(fractals)-1 {
		origin := fractals[i]
		dir := DirectionUp
		if origin.Type == FractalTop {
			dir = DirectionDown
		}

		var candidates []int
		for j := i + 1; j < len(fractals); j++ {
			cand := fractals[j]
			if cand.Type == origin.Type {
				continue
			}
			if dir == DirectionUp && cand.Price <= origin.Price {
				continue
			}
			if dir == DirectionDown && cand.Price >= origin.Price {
				continue
			}
			ob := merged[origin.BarIndex]
			cb := merged[cand.BarIndex]
			if ob.Contains(cb.Candle) || cb.Contains(ob.Candle) {
				continue
			}
			if cand.BarIndex-origin.BarIndex+1 < final.MinStrokeBars {
				continue
			}
			candidates = append(candidates, j)
		}
		if len(candidates) == 0 {
			i++
			continue
		}

		best := candidates[0]
		for _, j := range candidates[1:] {
			if dir == DirectionUp && fractals[j].Price > fractals[best].Price {
				best = j
			}
			if dir == DirectionDown && fractals[j].Price < fractals[best].Price {
				best = j
			}
		}

		strokes = append(strokes, newStroke(origin, fractals[best], dir, merged))
		i = best
	}
	return strokes
}

func newStroke(start, end Fractal, dir Direction, merged []MergedCandle) Stroke {
	s := Stroke{
		ID:           fmt.Sprintf("stroke-%d-%d", start.BarIndex, end.BarIndex),
		Direction:    dir,
		Start:        start,
		End:          end,
		DurationBars: end.BarIndex - start.BarIndex + 1,
		IsValid:      true,
	}
	s.Amplitude = end.Price - start.Price
	if s.Amplitude < 0 {
		s.Amplitude = -s.Amplitude
	}
	if start.Price > 0 {
		s.AmplitudePct = s.Amplitude / start.Price * 100
	}

	var volSum float64
	for i := start.BarIndex; i <= end.BarIndex && i < len(merged); i++ {
		volSum += merged[i].Volume
	}
	if s.DurationBars > 0 {
		s.AvgVolume = volSum / float64(s.DurationBars)
	}
	s.MaxRetracement = maxRetracement(merged, start.BarIndex, end.BarIndex, dir, s.Amplitude)
	return s
}

// maxRetracement 计算笔内最大逆向回撤与总振幅之比。
// 上行笔以滚动最高价为参照取其与当根最低价的落差，下行笔对称；
// 接近 0 说明走势几乎单边。
func maxRetracement(merged []MergedCandle, from, to int, dir Direction, amplitude float64) float64 {
	if amplitude <= 0 || from >= to || to >= len(merged) {
		return 0
	}
	var worst float64
	if dir == DirectionUp {
		peak := merged[from].High
		for i := from; i <= to; i++ {
			if merged[i].High > peak {
				peak = merged[i].High
			}
			if d := peak - merged[i].Low; d > worst {
				worst = d
			}
		}
	} else {
		trough := merged[from].Low
		for i := from; i <= to; i++ {
			if merged[i].Low < trough {
				trough = merged[i].Low
			}
			if d := merged[i].High - trough; d > worst {
				worst = d
			}
		}
	}
	return worst / amplitude
}
