package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/detector"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/binance"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/database"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/render"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "交易对,如 BTCUSDT")
		interval = flag.String("interval", "30m", "K线周期")
		limit    = flag.Int("limit", 300, "拉取的K线数量")
		strategy = flag.String("strategy", "dynamic", "中枢策略: dynamic / fixed")
		chartOut = flag.String("chart", "", "图表 HTML 输出路径")
		pngOut   = flag.String("png", "", "图表 PNG 输出路径(需要本机 Chrome)")
		save     = flag.Bool("save", false, "把分析快照写入 sqlite")
		dbPath   = flag.String("db", "data/structure.db", "sqlite 路径(-save 时使用)")
	)
	flag.Parse()

	if strings.TrimSpace(*symbol) == "" {
		fmt.Fprintln(os.Stderr, "用法: structctl -symbol BTCUSDT [-interval 30m] [-limit 300]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	sym := strings.ToUpper(strings.TrimSpace(*symbol))

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	source, err := binance.New(binance.Config{})
	if err != nil {
		fatal("初始化行情源失败: %v", err)
	}
	defer source.Close()

	candles, err := source.FetchHistory(ctx, sym, *interval, *limit)
	if err != nil {
		fatal("拉取K线失败: %v", err)
	}
	if len(candles) == 0 {
		fatal("交易所没有返回 %s %s 的K线", sym, *interval)
	}

	analyzer := chanlun.NewAnalyzer(chanlun.Config{Strategy: chanlun.NormalizeStrategy(*strategy)})
	res := analyzer.Analyze(candles)

	printSummary(sym, *interval, len(candles), res)
	printStrokes(res.Strokes, 12)
	printCenters(res.Centers)
	printDetectors(candles)

	if *chartOut != "" || *pngOut != "" {
		writeCharts(ctx, sym, *interval, res, *chartOut, *pngOut)
	}
	if *save {
		saveSnapshot(ctx, *dbPath, sym, *interval, analyzer, len(candles), res)
	}
}

func fatal(format string, args ...any) {
	logger.Errorf("[structctl] "+format, args...)
	os.Exit(1)
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func printSummary(symbol, interval string, bars int, res chanlun.Result) {
	t := newTable(fmt.Sprintf("%s %s 结构概览", symbol, interval))
	t.AppendHeader(table.Row{"指标", "值"})
	t.AppendRow(table.Row{"原始K线", bars})
	t.AppendRow(table.Row{"合并K线", len(res.Merged)})
	t.AppendRow(table.Row{"分型(确认)", fmt.Sprintf("%d (%d)", len(res.Fractals), res.ConfirmedFractals)})
	t.AppendRow(table.Row{"笔(有效)", fmt.Sprintf("%d (%d)", len(res.Strokes), res.ValidStrokes)})
	t.AppendRow(table.Row{"中枢(有效)", fmt.Sprintf("%d (%d)", len(res.Centers), res.ValidCenters)})
	if res.CurrentCenter != nil {
		t.AppendRow(table.Row{"当前中枢", fmt.Sprintf("[%.4f, %.4f]", res.CurrentCenter.Low, res.CurrentCenter.High)})
	}
	t.Render()
}

func printStrokes(strokes []chanlun.Stroke, tail int) {
	if len(strokes) == 0 {
		return
	}
	start := 0
	if len(strokes) > tail {
		start = len(strokes) - tail
	}
	t := newTable(fmt.Sprintf("最近 %d 笔", len(strokes)-start))
	t.AppendHeader(table.Row{"#", "方向", "起点", "终点", "振幅%", "K线数", "有效"})
	for i := start; i < len(strokes); i++ {
		s := strokes[i]
		t.AppendRow(table.Row{
			i + 1,
			s.Direction,
			fmt.Sprintf("%.4f@%d", s.Start.Price, s.Start.BarIndex),
			fmt.Sprintf("%.4f@%d", s.End.Price, s.End.BarIndex),
			fmt.Sprintf("%.2f", s.AmplitudePct),
			s.DurationBars,
			yesNo(s.IsValid),
		})
	}
	t.Render()
}

func printCenters(centers []chanlun.Center) {
	if len(centers) == 0 {
		return
	}
	t := newTable("中枢")
	t.AppendHeader(table.Row{"#", "区间", "中轴", "高度%", "笔数", "跨度", "完结"})
	for i, c := range centers {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("[%.4f, %.4f]", c.Low, c.High),
			fmt.Sprintf("%.4f", c.Middle),
			fmt.Sprintf("%.2f", c.HeightPct),
			len(c.Strokes),
			c.DurationBars,
			yesNo(c.IsCompleted),
		})
	}
	t.Render()
}

func printDetectors(candles []market.Candle) {
	rep := detector.PredictBreakout(candles, detector.BreakoutOptions{})
	t := newTable(fmt.Sprintf("突破预测 score=%.1f direction=%s strength=%s", rep.Score, rep.Direction, rep.Strength))
	t.AppendHeader(table.Row{"信号", "方向", "得分", "说明"})
	for _, sig := range rep.Signals {
		t.AppendRow(table.Row{sig.Name, sig.Direction, fmt.Sprintf("%.1f", sig.Score), sig.Note})
	}
	t.Render()

	levels := detector.DetectLevels(candles, detector.LevelOptions{})
	lt := newTable(fmt.Sprintf("关键价位 通道[%.4f, %.4f]", levels.Channel.Lower, levels.Channel.Upper))
	lt.AppendHeader(table.Row{"类型", "价位", "触碰", "强度"})
	for _, lv := range levels.Levels {
		lt.AppendRow(table.Row{lv.Kind, fmt.Sprintf("%.4f", lv.Price), lv.Touches, fmt.Sprintf("%.2f", lv.Strength)})
	}
	lt.Render()

	if rng, ok := detector.DetectOverlap(candles, detector.OverlapOptions{}); ok {
		ot := newTable("盘整区间")
		ot.AppendHeader(table.Row{"区间", "K线数", "高度%", "量能节点"})
		ot.AppendRow(table.Row{
			fmt.Sprintf("[%.4f, %.4f]", rng.Lower, rng.Upper),
			rng.Bars,
			fmt.Sprintf("%.2f", rng.HeightPct),
			fmt.Sprintf("%.4f", rng.VolumeNode),
		})
		ot.Render()
	}

	if signals := detector.DetectDivergences(candles, detector.DivergenceOptions{}); len(signals) > 0 {
		dt := newTable("背离信号")
		dt.AppendHeader(table.Row{"指标", "类型", "距离"})
		for _, sig := range signals {
			dt.AppendRow(table.Row{sig.Indicator, sig.Type, sig.Distance})
		}
		dt.Render()
	}
}

func writeCharts(ctx context.Context, symbol, interval string, res chanlun.Result, htmlOut, pngOut string) {
	r := render.New(render.Options{})
	html, err := r.RenderHTML(symbol, interval, res)
	if err != nil {
		fatal("渲染图表失败: %v", err)
	}
	if htmlOut != "" {
		if err := os.WriteFile(htmlOut, html, 0o644); err != nil {
			fatal("写入图表失败: %v", err)
		}
		logger.Infof("[structctl] 图表已写入 %s", htmlOut)
	}
	if pngOut != "" {
		png, err := r.SnapshotPNG(ctx, html)
		if err != nil {
			fatal("截图失败: %v", err)
		}
		if err := os.WriteFile(pngOut, png, 0o644); err != nil {
			fatal("写入 PNG 失败: %v", err)
		}
		logger.Infof("[structctl] PNG 已写入 %s", pngOut)
	}
}

func saveSnapshot(ctx context.Context, dbPath, symbol, interval string, analyzer *chanlun.Analyzer, bars int, res chanlun.Result) {
	db, err := database.OpenStructureStore(dbPath)
	if err != nil {
		fatal("打开结构库失败: %v", err)
	}
	defer db.Close()

	id, err := db.SaveSnapshot(ctx, symbol, interval, analyzer.StrategyName(), bars, res)
	if err != nil {
		fatal("写入快照失败: %v", err)
	}
	logger.Infof("[structctl] 快照已保存 id=%s", id)
}
