package detector

import "math"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lastFinite 返回序列末尾最近的有效值,talib 序列首部常含 0/NaN 占位。
func lastFinite(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if isFinite(series[i]) && series[i] != 0 {
			return series[i], true
		}
	}
	return 0, false
}

// tailMean 取序列末尾 n 个有效值的均值。
func tailMean(series []float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	var sum float64
	var count int
	for i := len(series) - 1; i >= 0 && count < n; i-- {
		if !isFinite(series[i]) || series[i] == 0 {
			continue
		}
		sum += series[i]
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
