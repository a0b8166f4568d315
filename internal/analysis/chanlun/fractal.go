package chanlun

// DetectFractals 在合并序列上扫描三根 K 线的局部极值。
// 顶分型要求中间一根的高点与低点同时严格高于左右两根；底分型对称。
// 自左向右输出，若新分型与上一个已输出分型同型则丢弃新的，保证相邻分型
// 严格交替。Strength 按极值一侧与左右邻居的相对落差计算，落在 0~1。
func DetectFractals(merged []MergedCandle) []Fractal {
	if len(merged) < 3 {
		return nil
	}
	var out []Fractal
	for i := 1; i <= len(merged)-2; i++ {
		prev, cur, next := merged[i-1], merged[i], merged[i+1]

		isTop := cur.High > prev.High && cur.High > next.High &&
			cur.Low > prev.Low && cur.Low > next.Low
		isBottom := cur.High < prev.High && cur.High < next.High &&
			cur.Low < prev.Low && cur.Low < next.Low
		if !isTop && !isBottom {
			continue
		}

		f := Fractal{
			BarIndex: i,
			Time:     cur.OpenTime,
		}
		if isTop {
			f.Type = FractalTop
			f.Price = cur.High
			f.Strength = fractalStrength(cur.High, prev.High, next.High)
		} else {
			f.Type = FractalBottom
			f.Price = cur.Low
			f.Strength = fractalStrength(cur.Low, prev.Low, next.Low)
		}

		if n := len(out); n > 0 && out[n-1].Type == f.Type {
			continue
		}
		out = append(out, f)
	}
	return out
}

// fractalStrength 以枢轴自身价格为基准，取与左右邻居相对落差的较小者，
// 放大 10 倍并截断到 1。
func fractalStrength(pivot, left, right float64) float64 {
	if pivot <= 0 {
		return 0
	}
	gapL := pivot - left
	gapR := pivot - right
	if gapL < 0 {
		gapL = -gapL
	}
	if gapR < 0 {
		gapR = -gapR
	}
	gap := gapL
	if gapR < gap {
		gap = gapR
	}
	s := 10 * gap / pivot
	if s > 1 {
		s = 1
	}
	return s
}

// ConfirmFractals 回填分型的确认状态并返回更新后的副本。
// 顶分型被其后任意一根最高价严格高于 Price 的 K 线破坏，底分型对称；
// 未被破坏即视为确认。ConfirmedBars 记录分型之后到序列末尾经过的 K 线数。
func ConfirmFractals(fractals []Fractal, merged []MergedCandle) []Fractal {
	if len(fractals) == 0 {
		return nil
	}
	out := make([]Fractal, len(fractals))
	for i, f := range fractals {
		g := f
		g.IsConfirmed = true
		for j := f.BarIndex + 1; j < len(merged); j++ {
			if f.Type == FractalTop && merged[j].High > f.Price {
				g.IsConfirmed = false
				break
			}
			if f.Type == FractalBottom && merged[j].Low < f.Price {
				g.IsConfirmed = false
				break
			}
		}
		if last := len(merged) - 1; last > f.BarIndex {
			g.ConfirmedBars = last - f.BarIndex
		}
		out[i] = g
	}
	return out
}
