package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/config/writer"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/store"
)

type fakeMonitor struct {
	results map[string]chanlun.Result
	nowErr  error
}

func (f *fakeMonitor) Result(symbol, interval string) (chanlun.Result, time.Time, bool) {
	res, ok := f.results[symbol+"@"+interval]
	if !ok {
		return chanlun.Result{}, time.Time{}, false
	}
	return res, time.Now(), true
}

func (f *fakeMonitor) AnalyzeNow(ctx context.Context, symbol, interval string) (chanlun.Result, error) {
	if f.nowErr != nil {
		return chanlun.Result{}, f.nowErr
	}
	res, ok := f.results[symbol+"@"+interval]
	if !ok {
		return chanlun.Result{}, errors.New("没有该序列的K线数据")
	}
	return res, nil
}

func (f *fakeMonitor) Tracked() []store.SeriesInfo {
	return []store.SeriesInfo{{Symbol: "BTCUSDT", Interval: "1m", Count: 100}}
}

func (f *fakeMonitor) Intervals() []string { return []string{"1m"} }

func (f *fakeMonitor) Stats() market.SourceStats { return market.SourceStats{} }

type fakeMetrics struct {
	rate    float64
	rateErr error
	points  []market.OpenInterestPoint
}

func (f *fakeMetrics) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return f.rate, f.rateErr
}

func (f *fakeMetrics) GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]market.OpenInterestPoint, error) {
	return f.points, nil
}

type fakeRenderer struct {
	html []byte
	png  []byte
	err  error
}

func (f *fakeRenderer) RenderHTML(symbol, interval string, res chanlun.Result) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.html, nil
}

func (f *fakeRenderer) SnapshotPNG(ctx context.Context, html []byte) ([]byte, error) {
	return f.png, nil
}

func seedKlines(t *testing.T, ks *store.MemoryKlineStore, symbol, interval string, n int) {
	t.Helper()
	base := int64(1_700_000_000_000)
	candles := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i%7)
		candles = append(candles, market.Candle{
			OpenTime:  base + int64(i)*60_000,
			CloseTime: base + int64(i+1)*60_000 - 1,
			Open:      price,
			High:      price + 1.5,
			Low:       price - 1.5,
			Close:     price + 0.5,
			Volume:    10 + float64(i%5),
		})
	}
	if err := ks.Set(context.Background(), symbol, interval, candles); err != nil {
		t.Fatalf("写入测试K线失败: %v", err)
	}
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ks := store.NewMemoryKlineStore()
	seedKlines(t, ks, "BTCUSDT", "1m", 300)
	deps := Deps{
		Monitor: &fakeMonitor{results: map[string]chanlun.Result{}},
		Klines:  ks,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := New(Config{Mode: gin.TestMode}, deps)
	if err != nil {
		t.Fatalf("创建服务失败: %v", err)
	}
	return srv
}

func doGet(t *testing.T, srv *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("缺少 monitor 应报错")
	}
	if _, err := New(Config{}, Deps{Monitor: &fakeMonitor{}}); err == nil {
		t.Fatal("缺少 kline store 应报错")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	w := doGet(t, srv, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz 应返回 200, 实际=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Fatalf("healthz 响应应包含 ok, 实际=%s", w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	w := doGet(t, srv, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status 应返回 200, 实际=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "BTCUSDT") {
		t.Fatalf("status 应包含已跟踪序列, 实际=%s", w.Body.String())
	}
}

func TestKlines(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doGet(t, srv, "/api/v1/klines?symbol=btcusdt&interval=1m&limit=50")
	if w.Code != http.StatusOK {
		t.Fatalf("klines 应返回 200, 实际=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Count   int             `json:"count"`
		Candles []market.Candle `json:"candles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Count != 50 || len(resp.Candles) != 50 {
		t.Fatalf("应返回 50 根K线, 实际=%d", resp.Count)
	}

	if w := doGet(t, srv, "/api/v1/klines?symbol=btcusdt"); w.Code != http.StatusBadRequest {
		t.Fatalf("缺少 interval 应返回 400, 实际=%d", w.Code)
	}
	if w := doGet(t, srv, "/api/v1/klines?symbol=NOPEUSDT&interval=1m"); w.Code != http.StatusNotFound {
		t.Fatalf("未知序列应返回 404, 实际=%d", w.Code)
	}
	if w := doGet(t, srv, "/api/v1/klines?symbol=btcusdt&interval=1m&limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("非法 limit 应返回 400, 实际=%d", w.Code)
	}
}

func TestStructure(t *testing.T) {
	res := chanlun.Result{Merged: []chanlun.MergedCandle{{MergedCount: 1}}}
	srv := newTestServer(t, func(d *Deps) {
		d.Monitor = &fakeMonitor{results: map[string]chanlun.Result{"BTCUSDT@1m": res}}
	})

	w := doGet(t, srv, "/api/v1/structure?symbol=BTCUSDT&interval=1m")
	if w.Code != http.StatusOK {
		t.Fatalf("structure 应返回 200, 实际=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "merged") {
		t.Fatalf("响应应包含分析结果, 实际=%s", w.Body.String())
	}

	if w := doGet(t, srv, "/api/v1/structure?symbol=ETHUSDT&interval=1m"); w.Code != http.StatusNotFound {
		t.Fatalf("未分析的序列应返回 404, 实际=%d", w.Code)
	}
	if w := doGet(t, srv, "/api/v1/structure?symbol=BTCUSDT&interval=1m&refresh=true"); w.Code != http.StatusOK {
		t.Fatalf("refresh 应返回 200, 实际=%d", w.Code)
	}
}

func TestStructureStoreDisabled(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, url := range []string{
		"/api/v1/structure/centers?symbol=BTCUSDT&interval=1m",
		"/api/v1/structure/snapshots?symbol=BTCUSDT&interval=1m",
		"/api/v1/structure/snapshots/abc",
	} {
		if w := doGet(t, srv, url); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s 未启用持久化应返回 503, 实际=%d", url, w.Code)
		}
	}
}

func TestIndicators(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doGet(t, srv, "/api/v1/indicators?symbol=BTCUSDT&interval=1m")
	if w.Code != http.StatusOK {
		t.Fatalf("indicators 应返回 200, 实际=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ema_fast") {
		t.Fatalf("响应应包含 ema_fast, 实际=%s", w.Body.String())
	}

	// 样本不足以计算固定周期指标
	if w := doGet(t, srv, "/api/v1/indicators?symbol=BTCUSDT&interval=1m&limit=10"); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("样本不足应返回 422, 实际=%d", w.Code)
	}
}

func TestDetectorEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, name := range []string{"breakout", "levels", "overlap", "divergence"} {
		url := fmt.Sprintf("/api/v1/detectors/%s?symbol=BTCUSDT&interval=1m", name)
		if w := doGet(t, srv, url); w.Code != http.StatusOK {
			t.Fatalf("%s 应返回 200, 实际=%d body=%s", name, w.Code, w.Body.String())
		}
	}
}

func TestFunding(t *testing.T) {
	srv := newTestServer(t, nil)
	if w := doGet(t, srv, "/api/v1/market/funding?symbol=BTCUSDT"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("未配置指标源应返回 503, 实际=%d", w.Code)
	}

	srv = newTestServer(t, func(d *Deps) {
		d.Metrics = &fakeMetrics{rate: 0.0001}
	})
	w := doGet(t, srv, "/api/v1/market/funding?symbol=BTCUSDT")
	if w.Code != http.StatusOK {
		t.Fatalf("funding 应返回 200, 实际=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "funding_rate") {
		t.Fatalf("响应应包含 funding_rate, 实际=%s", w.Body.String())
	}

	srv = newTestServer(t, func(d *Deps) {
		d.Metrics = &fakeMetrics{rateErr: errors.New("上游超时")}
	})
	if w := doGet(t, srv, "/api/v1/market/funding?symbol=BTCUSDT"); w.Code != http.StatusBadGateway {
		t.Fatalf("上游失败应返回 502, 实际=%d", w.Code)
	}
}

func TestOpenInterest(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Metrics = &fakeMetrics{points: []market.OpenInterestPoint{{Symbol: "BTCUSDT", SumOpenInterest: 123}}}
	})
	w := doGet(t, srv, "/api/v1/market/openinterest?symbol=BTCUSDT&period=5m")
	if w.Code != http.StatusOK {
		t.Fatalf("openinterest 应返回 200, 实际=%d", w.Code)
	}
	var resp struct {
		Count  int    `json:"count"`
		Period string `json:"period"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Count != 1 || resp.Period != "5m" {
		t.Fatalf("应返回 1 个数据点, 实际=%+v", resp)
	}
}

func TestChart(t *testing.T) {
	res := chanlun.Result{Merged: []chanlun.MergedCandle{{MergedCount: 1}}}
	srv := newTestServer(t, func(d *Deps) {
		d.Monitor = &fakeMonitor{results: map[string]chanlun.Result{"BTCUSDT@1m": res}}
		d.Renderer = &fakeRenderer{html: []byte("<html>chart</html>"), png: []byte{0x89, 0x50}}
	})

	w := doGet(t, srv, "/api/v1/chart?symbol=BTCUSDT&interval=1m")
	if w.Code != http.StatusOK {
		t.Fatalf("chart 应返回 200, 实际=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("默认应返回 HTML, 实际 Content-Type=%s", ct)
	}

	w = doGet(t, srv, "/api/v1/chart?symbol=BTCUSDT&interval=1m&format=png")
	if w.Code != http.StatusOK {
		t.Fatalf("png 格式应返回 200, 实际=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("应返回 image/png, 实际=%s", ct)
	}

	srv = newTestServer(t, nil)
	if w := doGet(t, srv, "/api/v1/chart?symbol=BTCUSDT&interval=1m"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("未配置渲染器应返回 503, 实际=%d", w.Code)
	}
}

func TestWatchlistsMounted(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Watchlists = writer.NewWatchlistWriter(filepath.Join(t.TempDir(), "watchlists.yaml"))
	})
	body := strings.NewReader(`{"name":"main","symbols":["BTCUSDT"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/watchlists", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("watchlist 创建应返回 201, 实际=%d body=%s", w.Code, w.Body.String())
	}
}
