package chanlun

import (
	"strings"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// Direction 表示笔或走势的方向。
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// FractalType 分型类别：顶分型或底分型。
type FractalType string

const (
	FractalTop    FractalType = "top"
	FractalBottom FractalType = "bottom"
)

// CenterStrategy 中枢边界跟踪策略。
type CenterStrategy string

const (
	// StrategyDynamic 逐笔收紧边界的增量算法，默认策略。
	StrategyDynamic CenterStrategy = "dynamic"
	// StrategyFixed 固定三笔窗口求重叠带后冻结扩展。
	StrategyFixed CenterStrategy = "fixed"
)

// NormalizeStrategy 解析策略名，未知值回退到 dynamic。
func NormalizeStrategy(s string) CenterStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StrategyFixed):
		return StrategyFixed
	default:
		return StrategyDynamic
	}
}

// MergedCandle 是消除包含关系后的合并 K 线。
// MergedCount 记录该根吸收了多少原始 K 线；Trend 是合并时的运行方向标记。
type MergedCandle struct {
	market.Candle
	MergedCount int       `json:"merged_count"`
	Trend       Direction `json:"trend,omitempty"`
}

// Fractal 表示合并序列上的三根 K 线局部极值。
// Price 取顶分型中间 K 线的最高价或底分型的最低价；
// BarIndex 指向合并序列下标；Strength 为 0~1 的显著度；
// IsConfirmed 在确认阶段回填：其后无 K 线突破该极值即视为确认。
type Fractal struct {
	Type          FractalType `json:"type"`
	Price         float64     `json:"price"`
	BarIndex      int         `json:"bar_index"`
	Time          int64       `json:"time"`
	Strength      float64     `json:"strength"`
	IsConfirmed   bool        `json:"is_confirmed"`
	ConfirmedBars int         `json:"confirmed_bars"`
}

// Stroke 表示连接两个异型分型的一笔。端点分型按值持有，互不共享。
type Stroke struct {
	ID             string    `json:"id"`
	Direction      Direction `json:"direction"`
	Start          Fractal   `json:"start"`
	End            Fractal   `json:"end"`
	Amplitude      float64   `json:"amplitude"`
	AmplitudePct   float64   `json:"amplitude_pct"`
	DurationBars   int       `json:"duration_bars"`
	MaxRetracement float64   `json:"max_retracement"`
	AvgVolume      float64   `json:"avg_volume"`
	IsValid        bool      `json:"is_valid"`
}

// PriceHigh 返回笔两端点价格中的较高者。
func (s Stroke) PriceHigh() float64 {
	if s.Start.Price > s.End.Price {
		return s.Start.Price
	}
	return s.End.Price
}

// PriceLow 返回笔两端点价格中的较低者。
func (s Stroke) PriceLow() float64 {
	if s.Start.Price < s.End.Price {
		return s.Start.Price
	}
	return s.End.Price
}

// Center 表示由至少三笔构成的中枢（盘整区间）。
// High/Low 为上下边界（High ≥ Low），StartIndex/EndIndex 为合并序列上的
// 起止 K 线下标；IsValid 反映高度和持续时间阈值，IsCompleted 表示中枢
// 是否在输入结束前就已终结。
type Center struct {
	ID           string   `json:"id"`
	High         float64  `json:"high"`
	Low          float64  `json:"low"`
	Middle       float64  `json:"middle"`
	Height       float64  `json:"height"`
	HeightPct    float64  `json:"height_pct"`
	Strokes      []Stroke `json:"strokes"`
	StartIndex   int      `json:"start_index"`
	EndIndex     int      `json:"end_index"`
	StartTime    int64    `json:"start_time"`
	EndTime      int64    `json:"end_time"`
	DurationBars int      `json:"duration_bars"`
	Strength     float64  `json:"strength"`
	IsValid      bool     `json:"is_valid"`
	IsCompleted  bool     `json:"is_completed"`
}

// Result 是一次完整结构分析的产物。Centers 只含有效中枢。
type Result struct {
	Merged            []MergedCandle `json:"merged"`
	Fractals          []Fractal      `json:"fractals"`
	Strokes           []Stroke       `json:"strokes"`
	Centers           []Center       `json:"centers"`
	CurrentCenter     *Center        `json:"current_center,omitempty"`
	LastStroke        *Stroke        `json:"last_stroke,omitempty"`
	LastFractal       *Fractal       `json:"last_fractal,omitempty"`
	ConfirmedFractals int            `json:"confirmed_fractals"`
	ValidStrokes      int            `json:"valid_strokes"`
	ValidCenters      int            `json:"valid_centers"`
}

// Config 控制结构分析的阈值，零值字段由 withDefaults 填充。
type Config struct {
	// MinStrokeBars 一笔两端分型的最小 K 线跨度（含端点）。
	MinStrokeBars int `json:"min_stroke_bars"`
	// MinCenterStrokes 构成中枢的最少笔数。
	MinCenterStrokes int `json:"min_center_strokes"`
	// MaxCenterStrokes 固定窗口策略延伸时的最大笔数。
	MaxCenterStrokes int `json:"max_center_strokes"`
	// MinCenterHeightPct 中枢高度下限（相对中轴的百分比）。
	MinCenterHeightPct float64 `json:"min_center_height_pct"`
	// MaxCenterDurationBars 中枢持续 K 线数上限。
	MaxCenterDurationBars int `json:"max_center_duration_bars"`
	// Strategy 中枢检测策略，默认 dynamic。
	Strategy CenterStrategy `json:"strategy"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MinStrokeBars <= 0 {
		out.MinStrokeBars = 5
	}
	if out.MinCenterStrokes <= 0 {
		out.MinCenterStrokes = 3
	}
	if out.MaxCenterStrokes <= 0 {
		out.MaxCenterStrokes = 12
	}
	if out.MinCenterHeightPct <= 0 {
		out.MinCenterHeightPct = 0.3
	}
	if out.MaxCenterDurationBars <= 0 {
		out.MaxCenterDurationBars = 150
	}
	if out.Strategy == "" {
		out.Strategy = StrategyDynamic
	}
	return out
}
