package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
)

// Options 图表渲染配置。
type Options struct {
	OutputDir      string // HTML 落盘目录,默认 data/charts
	TimeoutSeconds int    // PNG 截图超时,默认 30 秒
}

// Renderer 把结构分析结果画成 ECharts K 线图:
// 合并 K 线为底,叠加分型散点、笔折线与中枢区带。
type Renderer struct {
	outputDir string
	timeout   time.Duration
}

func New(cfg Options) *Renderer {
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join("data", "charts")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{outputDir: outputDir, timeout: timeout}
}

// RenderHTML 渲染完整的图表 HTML。
func (r *Renderer) RenderHTML(symbol, interval string, res chanlun.Result) ([]byte, error) {
	if len(res.Merged) == 0 {
		return nil, errors.New("没有可绘制的合并 K 线")
	}

	x := make([]string, 0, len(res.Merged))
	kd := make([]opts.KlineData, 0, len(res.Merged))
	for _, mc := range res.Merged {
		x = append(x, formatTime(mc.OpenTime))
		kd = append(kd, opts.KlineData{Value: [4]float64{mc.Open, mc.Close, mc.Low, mc.High}})
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s 结构分析", symbol, interval),
			Subtitle: fmt.Sprintf("合并K线 %d 根 · 分型 %d · 笔 %d · 中枢 %d", len(res.Merged), len(res.Fractals), len(res.Strokes), len(res.Centers)),
		}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 20}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Start: 0, End: 100}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "700px"}),
	)
	kline.SetXAxis(x).AddSeries("K线", kd,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        "#ec0000",
			Color0:       "#00b46a",
			BorderColor:  "#8a0000",
			BorderColor0: "#008f53",
		}),
	)
	if areas := centerAreas(x, res.Centers); len(areas) > 0 {
		kline.SetSeriesOptions(areas...)
	}

	overlays := make([]charts.Overlaper, 0, 3)
	if top, bottom := fractalScatter(x, res.Fractals); len(top) > 0 || len(bottom) > 0 {
		scatter := charts.NewScatter()
		scatter.SetXAxis(x)
		if len(top) > 0 {
			scatter.AddSeries("顶分型", top)
		}
		if len(bottom) > 0 {
			scatter.AddSeries("底分型", bottom)
		}
		overlays = append(overlays, scatter)
	}
	if pts := strokePolyline(x, res.Strokes); len(pts) > 1 {
		line := charts.NewLine()
		line.SetXAxis(x).AddSeries("笔", pts,
			charts.WithLineStyleOpts(opts.LineStyle{Width: 2, Color: "#4169e1"}),
		)
		overlays = append(overlays, line)
	}
	if len(overlays) > 0 {
		kline.Overlap(overlays...)
	}

	var buf bytes.Buffer
	if err := kline.Render(&buf); err != nil {
		return nil, fmt.Errorf("渲染图表失败: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML 渲染并写入输出目录,返回文件路径。
func (r *Renderer) WriteHTML(symbol, interval string, res chanlun.Result) (string, error) {
	html, err := r.RenderHTML(symbol, interval, res)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.html", symbol, interval, time.Now().Format("20060102_150405"))
	path := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("写入图表失败: %w", err)
	}
	return path, nil
}

// centerAreas 把每个中枢画成 [StartIndex, Low] 到 [EndIndex, High] 的半透明区带。
func centerAreas(x []string, centers []chanlun.Center) []charts.SeriesOpts {
	out := make([]charts.SeriesOpts, 0, len(centers)+1)
	for _, c := range centers {
		if c.StartIndex < 0 || c.EndIndex >= len(x) || c.StartIndex > c.EndIndex {
			continue
		}
		out = append(out, charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
			Name:        "中枢",
			Coordinate0: []interface{}{x[c.StartIndex], c.Low},
			Coordinate1: []interface{}{x[c.EndIndex], c.High},
		}))
	}
	if len(out) == 0 {
		return nil
	}
	out = append(out, charts.WithMarkAreaStyleOpts(opts.MarkAreaStyle{
		ItemStyle: &opts.ItemStyle{Color: "rgba(65,105,225,0.15)"},
	}))
	return out
}

// fractalScatter 把分型画成 K 线上方/下方的三角标记。
func fractalScatter(x []string, fractals []chanlun.Fractal) (top, bottom []opts.ScatterData) {
	for _, f := range fractals {
		if f.BarIndex < 0 || f.BarIndex >= len(x) {
			continue
		}
		point := opts.ScatterData{
			Value:      []interface{}{x[f.BarIndex], f.Price},
			Symbol:     "triangle",
			SymbolSize: 9,
		}
		if f.Type == chanlun.FractalTop {
			point.SymbolRotate = 180
			top = append(top, point)
		} else {
			bottom = append(bottom, point)
		}
	}
	return top, bottom
}

// strokePolyline 沿笔的端点连出折线;相邻笔共享端点,只需首端点加全部末端点。
func strokePolyline(x []string, strokes []chanlun.Stroke) []opts.LineData {
	if len(strokes) == 0 {
		return nil
	}
	pts := make([]opts.LineData, 0, len(strokes)+1)
	if first := strokes[0].Start; first.BarIndex >= 0 && first.BarIndex < len(x) {
		pts = append(pts, opts.LineData{Value: []interface{}{x[first.BarIndex], first.Price}})
	}
	for _, s := range strokes {
		if s.End.BarIndex < 0 || s.End.BarIndex >= len(x) {
			continue
		}
		pts = append(pts, opts.LineData{Value: []interface{}{x[s.End.BarIndex], s.End.Price}})
	}
	return pts
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
