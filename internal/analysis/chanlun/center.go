package chanlun

import "fmt"

// CenterDetector 在笔序列上圈定中枢。实现必须无跨调用状态，
// 同一实例可被多个 symbol 并发使用。
type CenterDetector interface {
	// Detect 返回全部检出的中枢，包括未达阈值的无效中枢（供诊断）。
	Detect(strokes []Stroke) []Center
	// Name 返回策略名。
	Name() string
}

// NewCenterDetector 按配置选择策略，默认 dynamic。
func NewCenterDetector(cfg Config) CenterDetector {
	final := cfg.withDefaults()
	if final.Strategy == StrategyFixed {
		return &FixedWindowDetector{cfg: final}
	}
	return &DynamicBoundaryDetector{cfg: final}
}

// FixedWindowDetector 用固定三笔窗口求重叠带：
// upper 取窗口内各笔高点的最小值，lower 取各笔低点的最大值，
// 要求 upper > lower 且三笔均与 [lower, upper] 相交。成立后带保持不变，
// 向后逐笔延伸，直到出现不相交的笔或达到 MaxCenterStrokes。
type FixedWindowDetector struct {
	cfg Config
}

func NewFixedWindowDetector(cfg Config) *FixedWindowDetector {
	return &FixedWindowDetector{cfg: cfg.withDefaults()}
}

func (d *FixedWindowDetector) Name() string { return string(StrategyFixed) }

func (d *FixedWindowDetector) Detect(strokes []Stroke) []Center {
	minStrokes := d.cfg.MinCenterStrokes
	var centers []Center
	i := 0
	for i+minStrokes <= len(strokes) {
		window := strokes[i : i+minStrokes]
		upper := window[0].PriceHigh()
		lower := window[0].PriceLow()
		for _, s := range window[1:] {
			if h := s.PriceHigh(); h < upper {
				upper = h
			}
			if l := s.PriceLow(); l > lower {
				lower = l
			}
		}
		if upper <= lower {
			i++
			continue
		}
		valid := true
		for _, s := range window {
			if !strokeIntersects(s, lower, upper) {
				valid = false
				break
			}
		}
		if !valid {
			i++
			continue
		}

		end := i + minStrokes
		for end < len(strokes) && end-i < d.cfg.MaxCenterStrokes && strokeIntersects(strokes[end], lower, upper) {
			end++
		}
		centers = append(centers, buildCenter(strokes[i:end], upper, lower, end-1, len(strokes), d.cfg))
		i = end
	}
	return centers
}

// strokeIntersects 判断笔的价格区间是否触及 [lower, upper]：
// 高点入带、低点入带或整体横跨均算相交。
func strokeIntersects(s Stroke, lower, upper float64) bool {
	h := s.PriceHigh()
	l := s.PriceLow()
	if h >= lower && h <= upper {
		return true
	}
	if l >= lower && l <= upper {
		return true
	}
	return l <= lower && h >= upper
}

// DynamicBoundaryDetector 逐笔收紧边界的增量算法。
// 命名沿用增量算法的内部惯例且与固定窗口相反：upper 由上行笔低点抬高，
// 充当地板；lower 由下行笔高点压低，充当天花板；两者不得交叉，成立条件
// 是 lower ≥ upper。产出的 Center.High 取 lower、Center.Low 取 upper，
// 对外恢复常规含义。
type DynamicBoundaryDetector struct {
	cfg Config
}

func NewDynamicBoundaryDetector(cfg Config) *DynamicBoundaryDetector {
	return &DynamicBoundaryDetector{cfg: cfg.withDefaults()}
}

func (d *DynamicBoundaryDetector) Name() string { return string(StrategyDynamic) }

func (d *DynamicBoundaryDetector) Detect(strokes []Stroke) []Center {
	var centers []Center
	i := 0
	for i < len(strokes) {
		accepted, upper, lower, ok := d.grow(strokes[i:])
		if !ok {
			i++
			continue
		}
		centers = append(centers, buildCenter(strokes[i:i+accepted], lower, upper, i+accepted-1, len(strokes), d.cfg))
		i += accepted
	}
	return centers
}

// grow 从序列头部开始逐笔吸收，返回被接纳的笔数与最终边界。
// 上行笔尝试抬高 upper（地板）：首笔直接初始化，之后取 max(upper, 笔低点)，
// 仅当 lower 未定义或新 upper ≤ lower 时接纳；下行笔对称地压低 lower
// （天花板），仅当 upper 未定义或新 lower ≥ upper 时接纳。首次拒绝即停止，
// 被拒的笔不计入。接纳满 MinCenterStrokes 且双边界就位并满足 lower ≥ upper
// 才算形成中枢。
func (d *DynamicBoundaryDetector) grow(strokes []Stroke) (accepted int, upper, lower float64, ok bool) {
	var hasUpper, hasLower bool
	for _, s := range strokes {
		if s.Direction == DirectionUp {
			cand := s.PriceLow()
			if hasUpper && upper > cand {
				cand = upper
			}
			if hasLower && cand > lower {
				break
			}
			upper = cand
			hasUpper = true
		} else {
			cand := s.PriceHigh()
			if hasLower && lower < cand {
				cand = lower
			}
			if hasUpper && cand < upper {
				break
			}
			lower = cand
			hasLower = true
		}
		accepted++
	}
	ok = accepted >= d.cfg.MinCenterStrokes && hasUpper && hasLower && lower >= upper
	return accepted, upper, lower, ok
}

// buildCenter 由成员笔与边界生成中枢并结算统计。
// high/low 为对外口径的上下边界；lastMemberIdx 是末笔在整个笔序列中的下标，
// 用于判定中枢是否在输入结束前终结。
func buildCenter(members []Stroke, high, low float64, lastMemberIdx, totalStrokes int, cfg Config) Center {
	owned := make([]Stroke, len(members))
	copy(owned, members)

	first := owned[0]
	last := owned[len(owned)-1]
	c := Center{
		High:        high,
		Low:         low,
		Strokes:     owned,
		StartIndex:  first.Start.BarIndex,
		EndIndex:    last.End.BarIndex,
		StartTime:   first.Start.Time,
		EndTime:     last.End.Time,
		IsCompleted: lastMemberIdx < totalStrokes-1,
	}
	c.ID = fmt.Sprintf("center-%d-%d", c.StartIndex, c.EndIndex)
	c.Middle = (high + low) / 2
	c.Height = high - low
	if c.Height < 0 {
		c.Height = -c.Height
	}
	if c.Middle > 0 {
		c.HeightPct = c.Height / c.Middle * 100
	}
	c.DurationBars = c.EndIndex - c.StartIndex + 1
	c.Strength = centerStrength(owned, c.DurationBars)
	c.IsValid = c.HeightPct >= cfg.MinCenterHeightPct && c.DurationBars <= cfg.MaxCenterDurationBars
	return c
}

// centerStrength 按笔数、持续时间和成员笔平均振幅给出 0~100 的强度分：
// 笔数占 40%（9 笔封顶），持续时间占 30%（50 根封顶），
// 振幅越小盘整越扎实，占 30%（平均振幅 15% 以上记 0）。
func centerStrength(members []Stroke, durationBars int) float64 {
	n := float64(len(members))
	countScore := n / 9
	if countScore > 1 {
		countScore = 1
	}
	durScore := float64(durationBars) / 50
	if durScore > 1 {
		durScore = 1
	}
	var ampSum float64
	for _, s := range members {
		ampSum += s.AmplitudePct
	}
	avgAmp := ampSum / n
	ampScore := 1 - avgAmp/15
	if ampScore < 0 {
		ampScore = 0
	}
	return 40*countScore + 30*durScore + 30*ampScore
}
