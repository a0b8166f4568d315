package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/coins"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/config"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/config/writer"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/binance"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/database"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/monitor"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/render"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/store"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/transport/http/api"
)

func main() {
	cfgPath := flag.String("config", "config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Errorf("[main] 加载配置失败: %v", err)
		os.Exit(1)
	}
	cfg.ApplyLogLevel()
	logger.Infof("[main] 结构分析服务启动")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	structures, err := database.OpenStructureStore(cfg.Database.Path)
	if err != nil {
		logger.Errorf("[main] 打开结构库失败: %v", err)
		os.Exit(1)
	}
	defer structures.Close()

	source, err := binance.New(binance.Config{
		RESTBaseURL:     cfg.Binance.RESTBaseURL,
		WSBaseURL:       cfg.Binance.WSBaseURL,
		APIKey:          cfg.Binance.APIKey,
		APISecret:       cfg.Binance.APISecret,
		RateLimitPerMin: cfg.Binance.RequestWeightLimit,
		WSBatchSize:     cfg.Binance.MaxStreamsPerConn,
		HTTPTimeout:     time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Errorf("[main] 初始化行情源失败: %v", err)
		os.Exit(1)
	}

	ks := store.NewMemoryKlineStore()
	analyzer := chanlun.NewAnalyzer(cfg.Analysis.Chanlun())

	var watchlists *writer.WatchlistWriter
	symbols := cfg.Market.Symbols
	if cfg.Market.WatchlistPath != "" {
		watchlists = writer.NewWatchlistWriter(cfg.Market.WatchlistPath)
		if ws, err := watchlists.ActiveSymbols(); err != nil {
			logger.Warnf("[main] 读取 watchlist 失败，沿用静态列表: %v", err)
		} else if len(ws) > 0 {
			symbols = mergeSymbols(symbols, ws)
		}
	}

	provider := buildProvider(cfg, symbols)

	mon := monitor.New(monitor.Params{
		Source:          source,
		Store:           ks,
		Structures:      structures,
		Analyzer:        analyzer,
		Symbols:         symbols,
		Intervals:       cfg.Market.Intervals,
		Provider:        provider,
		HistoryLimit:    cfg.Monitor.WarmupBars,
		MaxBars:         cfg.Market.MaxBars,
		RefreshCron:     cfg.Monitor.RefreshCron,
		SnapshotOnClose: cfg.Monitor.SnapshotOnClose,
		SnapshotKeep:    cfg.Database.SnapshotKeep,
	})
	if mon == nil {
		logger.Errorf("[main] 初始化监控失败")
		os.Exit(1)
	}
	defer mon.Close()

	if cfg.Monitor.Enabled {
		if err := mon.Start(ctx); err != nil {
			logger.Errorf("[main] 启动监控失败: %v", err)
			os.Exit(1)
		}
	} else {
		// 不跟实时流,只预热一次历史数据供查询接口使用
		if err := mon.Warmup(ctx); err != nil {
			logger.Warnf("[main] 历史预热失败: %v", err)
		}
	}

	renderer := render.New(render.Options{
		OutputDir:      cfg.Render.OutputDir,
		TimeoutSeconds: cfg.Render.TimeoutSeconds,
	})

	srv, err := api.New(api.Config{Addr: cfg.Server.Addr, Mode: cfg.Server.Mode}, api.Deps{
		Monitor:    mon,
		Klines:     ks,
		Structures: structures,
		Metrics:    source,
		Renderer:   renderer,
		Watchlists: watchlists,
	})
	if err != nil {
		logger.Errorf("[main] 初始化 API 失败: %v", err)
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Errorf("[main] HTTP 服务异常退出: %v", err)
		os.Exit(1)
	}
	logger.Infof("[main] 已退出")
}

// buildProvider 按配置挑选 symbols 动态发现方式:
// 交易所发现开启且设了上限时按 24h 成交额取头部,否则取全部永续对;
// 未开启时退回 HTTP 列表接口或纯静态列表。
func buildProvider(cfg *config.AppConfig, fallback []string) monitor.SymbolProvider {
	ex := cfg.Market.Exchange
	if ex.Enabled {
		client := futures.NewClient(cfg.Binance.APIKey, cfg.Binance.APISecret)
		if cfg.Binance.RESTBaseURL != "" {
			client.BaseURL = cfg.Binance.RESTBaseURL
		}
		if ex.MaxSymbols > 0 {
			return coins.NewTopVolumeProvider(client, coins.TopVolumeConfig{
				Quote:          ex.Quote,
				Top:            ex.MaxSymbols,
				RefreshSeconds: ex.RefreshSeconds,
				Fallback:       fallback,
			})
		}
		return coins.NewExchangeSymbolProvider(client, coins.ExchangeSymbolConfig{
			Quote:          ex.Quote,
			RefreshSeconds: ex.RefreshSeconds,
			Override:       ex.Override,
			Fallback:       fallback,
		})
	}
	if cfg.Market.SymbolsAPIURL != "" {
		return coins.NewHTTPSymbolProvider(cfg.Market.SymbolsAPIURL)
	}
	return nil
}

func mergeSymbols(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
