package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

// SnapshotPNG 用无头浏览器把图表 HTML 截成 PNG。
// ECharts 脚本从 CDN 加载,运行环境需要联网与可用的 Chrome。
func (r *Renderer) SnapshotPNG(ctx context.Context, html []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "chart-*.html")
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(html); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("关闭临时文件失败: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, r.timeout)
	defer cancelRun()

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(1400, 760),
		chromedp.Navigate("file://"+abs),
		chromedp.WaitReady("canvas", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("截图失败: %w", err)
	}
	return buf, nil
}
