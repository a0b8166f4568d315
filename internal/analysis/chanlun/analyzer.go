package chanlun

import "github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"

// Analyzer 把原始 K 线序列解析为合并 K 线、分型、笔与中枢。
// 一次 Analyze 是输入切片的纯函数，实例本身不携带跨调用状态，
// 可被多个 symbol 并发复用。
type Analyzer struct {
	cfg      Config
	detector CenterDetector
}

// NewAnalyzer 创建分析器，零值配置项取默认阈值。
func NewAnalyzer(cfg Config) *Analyzer {
	final := cfg.withDefaults()
	return &Analyzer{
		cfg:      final,
		detector: NewCenterDetector(final),
	}
}

// Config 返回生效中的配置（已填默认值）。
func (a *Analyzer) Config() Config { return a.cfg }

// StrategyName 返回当前中枢策略名。
func (a *Analyzer) StrategyName() string { return a.detector.Name() }

// Analyze 按 合并→分型→确认→笔→中枢 的顺序运行流水线。
// 不足三根 K 线属于正常的退化输入，返回全空但结构完整的结果，不报错。
// Result.Centers 只保留有效中枢；CurrentCenter 是最近一个尚未终结的
// 有效中枢（若有）。
func (a *Analyzer) Analyze(candles []market.Candle) Result {
	var res Result
	if len(candles) < 3 {
		return res
	}

	merged := MergeInclusion(candles)
	fractals := ConfirmFractals(DetectFractals(merged), merged)
	strokes := BuildStrokes(fractals, merged, a.cfg)
	all := a.detector.Detect(strokes)

	res.Merged = merged
	res.Fractals = fractals
	res.Strokes = strokes

	for _, f := range fractals {
		if f.IsConfirmed {
			res.ConfirmedFractals++
		}
	}
	for _, s := range strokes {
		if s.IsValid {
			res.ValidStrokes++
		}
	}
	for _, c := range all {
		if !c.IsValid {
			continue
		}
		res.Centers = append(res.Centers, c)
		res.ValidCenters++
		if !c.IsCompleted {
			cc := c
			res.CurrentCenter = &cc
		}
	}
	if n := len(strokes); n > 0 {
		last := strokes[n-1]
		res.LastStroke = &last
	}
	if n := len(fractals); n > 0 {
		last := fractals[n-1]
		res.LastFractal = &last
	}
	return res
}
