package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("缺省加载失败: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Mode != "release" {
		t.Fatalf("server 默认值错误: %+v", cfg.Server)
	}
	if len(cfg.Market.Symbols) != 2 || cfg.Market.Symbols[0] != "BTCUSDT" {
		t.Fatalf("symbols 默认值错误: %v", cfg.Market.Symbols)
	}
	if len(cfg.Market.Intervals) != 3 || cfg.Market.HistoryLimit != 300 || cfg.Market.MaxBars != 500 {
		t.Fatalf("market 默认值错误: %+v", cfg.Market)
	}
	if cfg.Market.Exchange.Quote != "USDT" || cfg.Market.Exchange.RefreshSeconds != 3600 {
		t.Fatalf("exchange 默认值错误: %+v", cfg.Market.Exchange)
	}
	if cfg.Database.Path != "data/structure.db" || cfg.Database.SnapshotKeep != 200 {
		t.Fatalf("database 默认值错误: %+v", cfg.Database)
	}
	if cfg.Monitor.WarmupBars != 300 || cfg.Monitor.RefreshCron != "@hourly" {
		t.Fatalf("monitor 默认值错误: %+v", cfg.Monitor)
	}
	if cfg.Render.OutputDir != "data/charts" || cfg.Render.TimeoutSeconds != 30 {
		t.Fatalf("render 默认值错误: %+v", cfg.Render)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("日志级别默认值错误: %s", cfg.Log.Level)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"
mode = "debug"

[binance]
rest_base_url = "https://testnet.binancefuture.com"

[market]
symbols = ["solusdt"]
history_limit = 100
max_bars = 200

[market.exchange]
enabled = true
max_symbols = 30

[analysis]
min_stroke_bars = 7
strategy = "fixed"

[database]
snapshot_keep = 50
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载 TOML 失败: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.Mode != "debug" {
		t.Fatalf("server 段解析错误: %+v", cfg.Server)
	}
	if cfg.Binance.RESTBaseURL != "https://testnet.binancefuture.com" {
		t.Fatalf("binance 段解析错误: %+v", cfg.Binance)
	}
	if len(cfg.Market.Symbols) != 1 || cfg.Market.Symbols[0] != "solusdt" {
		t.Fatalf("symbols 解析错误: %v", cfg.Market.Symbols)
	}
	if cfg.Market.HistoryLimit != 100 || cfg.Market.MaxBars != 200 {
		t.Fatalf("market 数值解析错误: %+v", cfg.Market)
	}
	if !cfg.Market.Exchange.Enabled || cfg.Market.Exchange.MaxSymbols != 30 {
		t.Fatalf("exchange 段解析错误: %+v", cfg.Market.Exchange)
	}
	if cfg.Analysis.MinStrokeBars != 7 || cfg.Analysis.Strategy != "fixed" {
		t.Fatalf("analysis 段解析错误: %+v", cfg.Analysis)
	}
	if cfg.Database.SnapshotKeep != 50 {
		t.Fatalf("database 段解析错误: %+v", cfg.Database)
	}
	// 未出现的字段仍按默认值补齐
	if len(cfg.Market.Intervals) != 3 {
		t.Fatalf("intervals 应取默认值, 实际=%v", cfg.Market.Intervals)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("BINANCE_API_KEY", "test-key")
	t.Setenv("MARKET_SYMBOLS", "dogeusdt,linkusdt")
	t.Setenv("MARKET_EXCHANGE_ENABLED", "true")
	t.Setenv("ANALYSIS_STRATEGY", "fixed")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("SERVER_ADDR 未生效: %s", cfg.Server.Addr)
	}
	if cfg.Binance.APIKey != "test-key" {
		t.Fatalf("BINANCE_API_KEY 未生效")
	}
	if len(cfg.Market.Symbols) != 2 || cfg.Market.Symbols[0] != "dogeusdt" {
		t.Fatalf("MARKET_SYMBOLS 未生效: %v", cfg.Market.Symbols)
	}
	if !cfg.Market.Exchange.Enabled {
		t.Fatalf("MARKET_EXCHANGE_ENABLED 未生效")
	}
	if cfg.Analysis.Strategy != "fixed" {
		t.Fatalf("ANALYSIS_STRATEGY 未生效: %s", cfg.Analysis.Strategy)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("LOG_LEVEL 未生效: %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	badMode := filepath.Join(dir, "mode.toml")
	if err := os.WriteFile(badMode, []byte("[server]\nmode = \"weird\"\n"), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	if _, err := Load(badMode); err == nil {
		t.Fatalf("非法 server.mode 应报错")
	}

	badBars := filepath.Join(dir, "bars.toml")
	if err := os.WriteFile(badBars, []byte("[market]\nmax_bars = 100\n"), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	if _, err := Load(badBars); err == nil {
		t.Fatalf("max_bars 小于 history_limit 应报错")
	}
}

func TestChanlunBridge(t *testing.T) {
	got := AnalysisConfig{MinStrokeBars: 7, Strategy: "fixed"}.Chanlun()
	if got.MinStrokeBars != 7 || got.Strategy != chanlun.StrategyFixed {
		t.Fatalf("桥接结果错误: %+v", got)
	}

	got = AnalysisConfig{Strategy: "unknown"}.Chanlun()
	if got.Strategy != chanlun.StrategyDynamic {
		t.Fatalf("未知策略应回退 dynamic, 实际=%s", got.Strategy)
	}
}
