package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
)

// AppConfig 汇总服务全部配置。加载顺序: config.toml -> 环境变量 -> 默认值补齐,
// 环境变量键为 段名_字段名(如 BINANCE_API_KEY、SERVER_ADDR)。
type AppConfig struct {
	Server   ServerConfig   `toml:"server"`
	Binance  BinanceConfig  `toml:"binance"`
	Market   MarketConfig   `toml:"market"`
	Analysis AnalysisConfig `toml:"analysis"`
	Database DatabaseConfig `toml:"database"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Render   RenderConfig   `toml:"render"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `toml:"addr" envconfig:"ADDR"`
	Mode string `toml:"mode" envconfig:"MODE"` // gin 模式: debug / release / test
}

// BinanceConfig 交易所网关配置。密钥只用于带签名的指标接口,建议走环境变量。
type BinanceConfig struct {
	RESTBaseURL        string `toml:"rest_base_url" envconfig:"REST_BASE_URL"`
	WSBaseURL          string `toml:"ws_base_url" envconfig:"WS_BASE_URL"`
	APIKey             string `toml:"api_key" envconfig:"API_KEY"`
	APISecret          string `toml:"api_secret" envconfig:"API_SECRET"`
	MaxStreamsPerConn  int    `toml:"max_streams_per_conn" envconfig:"MAX_STREAMS_PER_CONN"`
	RequestWeightLimit int    `toml:"request_weight_limit" envconfig:"REQUEST_WEIGHT_LIMIT"`
	TimeoutSeconds     int    `toml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

// MarketConfig 行情采集范围: 静态列表、watchlist 文件与交易所自动发现三选一或叠加。
type MarketConfig struct {
	Symbols       []string       `toml:"symbols" envconfig:"SYMBOLS"`
	Intervals     []string       `toml:"intervals" envconfig:"INTERVALS"`
	HistoryLimit  int            `toml:"history_limit" envconfig:"HISTORY_LIMIT"`
	MaxBars       int            `toml:"max_bars" envconfig:"MAX_BARS"`
	WatchlistPath string         `toml:"watchlist_path" envconfig:"WATCHLIST_PATH"`
	SymbolsAPIURL string         `toml:"symbols_api_url" envconfig:"SYMBOLS_API_URL"`
	Exchange      ExchangeConfig `toml:"exchange"`
}

// ExchangeConfig 永续合约自动发现配置。
type ExchangeConfig struct {
	Enabled        bool   `toml:"enabled" envconfig:"ENABLED"`
	Quote          string `toml:"quote" envconfig:"QUOTE"`
	Override       bool   `toml:"override" envconfig:"OVERRIDE"`
	RefreshSeconds int    `toml:"refresh_seconds" envconfig:"REFRESH_SECONDS"`
	MaxSymbols     int    `toml:"max_symbols" envconfig:"MAX_SYMBOLS"`
}

// AnalysisConfig 结构分析阈值,与 chanlun.Config 一一对应。
type AnalysisConfig struct {
	MinStrokeBars         int     `toml:"min_stroke_bars" envconfig:"MIN_STROKE_BARS"`
	MinCenterStrokes      int     `toml:"min_center_strokes" envconfig:"MIN_CENTER_STROKES"`
	MaxCenterStrokes      int     `toml:"max_center_strokes" envconfig:"MAX_CENTER_STROKES"`
	MinCenterHeightPct    float64 `toml:"min_center_height_pct" envconfig:"MIN_CENTER_HEIGHT_PCT"`
	MaxCenterDurationBars int     `toml:"max_center_duration_bars" envconfig:"MAX_CENTER_DURATION_BARS"`
	Strategy              string  `toml:"strategy" envconfig:"STRATEGY"`
}

// Chanlun 转成分析器配置,未知策略名回退 dynamic。
func (c AnalysisConfig) Chanlun() chanlun.Config {
	return chanlun.Config{
		MinStrokeBars:         c.MinStrokeBars,
		MinCenterStrokes:      c.MinCenterStrokes,
		MaxCenterStrokes:      c.MaxCenterStrokes,
		MinCenterHeightPct:    c.MinCenterHeightPct,
		MaxCenterDurationBars: c.MaxCenterDurationBars,
		Strategy:              chanlun.NormalizeStrategy(c.Strategy),
	}
}

// DatabaseConfig 快照持久化配置。
type DatabaseConfig struct {
	Path         string `toml:"path" envconfig:"PATH"`
	SnapshotKeep int    `toml:"snapshot_keep" envconfig:"SNAPSHOT_KEEP"`
}

// MonitorConfig 后台监控配置。
type MonitorConfig struct {
	Enabled         bool   `toml:"enabled" envconfig:"ENABLED"`
	WarmupBars      int    `toml:"warmup_bars" envconfig:"WARMUP_BARS"`
	RefreshCron     string `toml:"refresh_cron" envconfig:"REFRESH_CRON"`
	SnapshotOnClose bool   `toml:"snapshot_on_close" envconfig:"SNAPSHOT_ON_CLOSE"`
}

// RenderConfig 图表渲染配置。
type RenderConfig struct {
	OutputDir      string `toml:"output_dir" envconfig:"OUTPUT_DIR"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `toml:"level" envconfig:"LEVEL"`
}

// Load 读取配置: 先 .env,再 TOML 文件,再环境变量覆盖,最后补默认值。
// TOML 文件不存在时仅告警,继续用环境变量和默认值启动。
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
			}
			logger.Infof("[config] 已加载配置文件 %s", path)
		case os.IsNotExist(err):
			logger.Warnf("[config] 配置文件 %s 不存在，使用环境变量与默认值", path)
		default:
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	out := cfg.withDefaults()
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func applyEnv(cfg *AppConfig) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER", &cfg.Server},
		{"BINANCE", &cfg.Binance},
		{"MARKET", &cfg.Market}, // 嵌套的 exchange 段随 MARKET_EXCHANGE_* 一并处理
		{"ANALYSIS", &cfg.Analysis},
		{"DATABASE", &cfg.Database},
		{"MONITOR", &cfg.Monitor},
		{"RENDER", &cfg.Render},
		{"LOG", &cfg.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return fmt.Errorf("读取环境变量段 %s 失败: %w", s.prefix, err)
		}
	}
	return nil
}

func (c *AppConfig) withDefaults() AppConfig {
	out := *c
	if strings.TrimSpace(out.Server.Addr) == "" {
		out.Server.Addr = ":8080"
	}
	if strings.TrimSpace(out.Server.Mode) == "" {
		out.Server.Mode = "release"
	}
	if len(out.Market.Symbols) == 0 {
		out.Market.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if len(out.Market.Intervals) == 0 {
		out.Market.Intervals = []string{"1m", "5m", "30m"}
	}
	if out.Market.HistoryLimit <= 0 {
		out.Market.HistoryLimit = 300
	}
	if out.Market.MaxBars <= 0 {
		out.Market.MaxBars = 500
	}
	if strings.TrimSpace(out.Market.Exchange.Quote) == "" {
		out.Market.Exchange.Quote = "USDT"
	}
	if out.Market.Exchange.RefreshSeconds <= 0 {
		out.Market.Exchange.RefreshSeconds = 3600
	}
	if strings.TrimSpace(out.Database.Path) == "" {
		out.Database.Path = "data/structure.db"
	}
	if out.Database.SnapshotKeep <= 0 {
		out.Database.SnapshotKeep = 200
	}
	if out.Monitor.WarmupBars <= 0 {
		out.Monitor.WarmupBars = 300
	}
	if strings.TrimSpace(out.Monitor.RefreshCron) == "" {
		out.Monitor.RefreshCron = "@hourly"
	}
	if strings.TrimSpace(out.Render.OutputDir) == "" {
		out.Render.OutputDir = "data/charts"
	}
	if out.Render.TimeoutSeconds <= 0 {
		out.Render.TimeoutSeconds = 30
	}
	if strings.TrimSpace(out.Log.Level) == "" {
		out.Log.Level = "info"
	}
	return out
}

func (c *AppConfig) validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("无效的 server.mode: %s", c.Server.Mode)
	}
	if c.Market.MaxBars < c.Market.HistoryLimit {
		return fmt.Errorf("market.max_bars(%d) 不能小于 market.history_limit(%d)",
			c.Market.MaxBars, c.Market.HistoryLimit)
	}
	return nil
}

// ApplyLogLevel 把配置的日志级别应用到全局 logger。
func (c *AppConfig) ApplyLogLevel() {
	logger.SetLevel(logger.ParseLevel(c.Log.Level))
}
