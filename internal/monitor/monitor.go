package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/database"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/store"
)

// SymbolProvider 提供动态 symbols 列表
type SymbolProvider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// Params 组装 Monitor 需要的依赖与参数。
type Params struct {
	Source     market.Source
	Store      *store.MemoryKlineStore
	Structures *database.StructureStore // 可为 nil,此时不落盘
	Analyzer   *chanlun.Analyzer

	Symbols        []string
	Intervals      []string
	Provider       SymbolProvider // 动态 symbols 提供者,可为 nil
	HistoryLimit   int
	MaxBars        int
	WarmupParallel int

	RefreshCron     string // 为空时不启动定时刷新
	SnapshotOnClose bool
	SnapshotKeep    int
}

// Monitor 维护一组 symbol×interval 序列: 启动时并发预热历史 K 线,
// 随后消费实时流,在每根收线上重跑结构分析并缓存结果。
// 分析器本身无状态,可被全部序列共用。
type Monitor struct {
	source     market.Source
	ks         *store.MemoryKlineStore
	structures *database.StructureStore
	analyzer   *chanlun.Analyzer

	symbols         []string
	intervals       []string
	provider        SymbolProvider
	historyLimit    int
	maxBars         int
	warmupParallel  int
	refreshCron     string
	snapshotOnClose bool
	snapshotKeep    int

	mu        sync.RWMutex
	results   map[string]chanlun.Result
	updatedAt map[string]time.Time

	cron *cron.Cron
}

func New(p Params) *Monitor {
	if p.Source == nil || p.Store == nil || p.Analyzer == nil {
		return nil
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = 300
	}
	if p.MaxBars < p.HistoryLimit {
		p.MaxBars = p.HistoryLimit
	}
	if p.WarmupParallel <= 0 {
		p.WarmupParallel = 5
	}
	if p.SnapshotKeep <= 0 {
		p.SnapshotKeep = 200
	}
	return &Monitor{
		source:          p.Source,
		ks:              p.Store,
		structures:      p.Structures,
		analyzer:        p.Analyzer,
		symbols:         append([]string(nil), p.Symbols...),
		intervals:       append([]string(nil), p.Intervals...),
		provider:        p.Provider,
		historyLimit:    p.HistoryLimit,
		maxBars:         p.MaxBars,
		warmupParallel:  p.WarmupParallel,
		refreshCron:     p.RefreshCron,
		snapshotOnClose: p.SnapshotOnClose,
		snapshotKeep:    p.SnapshotKeep,
	}
}

func seriesKey(symbol, interval string) string { return symbol + "@" + interval }

// resolveSymbols 获取当前的 symbols 列表（优先动态，fallback 静态）
func (m *Monitor) resolveSymbols(ctx context.Context) []string {
	if m == nil {
		return nil
	}
	if m.provider != nil {
		targets, err := m.provider.List(ctx)
		if err != nil {
			logger.Warnf("[monitor] 动态币种获取失败，退回静态配置: %v", err)
		} else if len(targets) > 0 {
			return targets
		}
	}
	return m.symbols
}

// Warmup 并发拉取全部 symbol×interval 的历史 K 线并完成首轮分析。
// 单个序列失败只记日志,全部失败才返回错误。
func (m *Monitor) Warmup(ctx context.Context) error {
	if m == nil {
		return errors.New("monitor 未初始化")
	}
	symbols := m.resolveSymbols(ctx)
	if len(symbols) == 0 || len(m.intervals) == 0 {
		return errors.New("没有可预热的 symbol/interval")
	}

	var okCount, failCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.warmupParallel)
	for _, symbol := range symbols {
		for _, interval := range m.intervals {
			symbol, interval := symbol, interval
			g.Go(func() error {
				if err := m.warmSeries(gctx, symbol, interval); err != nil {
					failCount.Add(1)
					logger.Warnf("[monitor] 预热失败 %s %s: %v", symbol, interval, err)
					return nil
				}
				okCount.Add(1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	total := okCount.Load() + failCount.Load()
	logger.Infof("[monitor] 预热完成 %d/%d 条序列", okCount.Load(), total)
	if okCount.Load() == 0 {
		return fmt.Errorf("全部 %d 条序列预热失败", total)
	}
	return nil
}

func (m *Monitor) warmSeries(ctx context.Context, symbol, interval string) error {
	candles, err := m.source.FetchHistory(ctx, symbol, interval, m.historyLimit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return errors.New("历史数据为空")
	}
	if report := market.CheckContinuity(candles, interval); !report.Complete() {
		logger.Warnf("[monitor] %s %s 历史存在缺口 %d 处 (缺 %d 根)",
			symbol, interval, len(report.Gaps), report.Expected-report.Present)
	}
	if err := m.ks.Set(ctx, symbol, interval, candles); err != nil {
		return err
	}
	m.reanalyze(ctx, symbol, interval, candles, false)
	return nil
}

// Start 预热后订阅实时流并启动定时刷新。预热失败直接返回错误。
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("monitor 未初始化")
	}
	if err := m.Warmup(ctx); err != nil {
		return err
	}

	symbols := m.resolveSymbols(ctx)
	opts := market.SubscribeOptions{
		Buffer: 2048,
		OnConnect: func() {
			logger.Infof("[monitor] 行情流已连接 (%d symbols × %d intervals)", len(symbols), len(m.intervals))
		},
		OnDisconnect: func(err error) {
			if err != nil {
				logger.Errorf("[monitor] 行情流断线: %v", err)
			} else {
				logger.Errorf("[monitor] 行情流断线")
			}
		},
	}
	stream, err := m.source.Subscribe(ctx, symbols, m.intervals, opts)
	if err != nil {
		return fmt.Errorf("订阅实时流失败: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-stream:
				if !ok {
					return
				}
				m.handleEvent(ctx, ev)
			}
		}
	}()

	if m.refreshCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(m.refreshCron, func() { m.refresh(context.Background()) }); err != nil {
			logger.Warnf("[monitor] 刷新计划无效 %q: %v", m.refreshCron, err)
		} else {
			c.Start()
			m.cron = c
			logger.Infof("[monitor] 定时刷新已启动: %s", m.refreshCron)
		}
	}
	return nil
}

// handleEvent 把实时 K 线写入内存序列;收线事件触发重分析与可选落盘。
func (m *Monitor) handleEvent(ctx context.Context, ev market.CandleEvent) {
	if m == nil {
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" || ev.Interval == "" {
		return
	}
	c := ev.Candle
	if c.Close <= 0 && c.High <= 0 && c.Low <= 0 {
		return
	}
	if err := m.ks.Put(ctx, symbol, ev.Interval, []market.Candle{c}, m.maxBars); err != nil {
		logger.Warnf("[monitor] 写入 K 线失败 %s %s: %v", symbol, ev.Interval, err)
		return
	}
	if !ev.IsFinal {
		return
	}
	candles, err := m.ks.Get(ctx, symbol, ev.Interval)
	if err != nil || len(candles) == 0 {
		return
	}
	m.reanalyze(ctx, symbol, ev.Interval, candles, m.snapshotOnClose)
}

// reanalyze 重跑结构分析并缓存;persist 为 true 且配置了存储时保存快照。
func (m *Monitor) reanalyze(ctx context.Context, symbol, interval string, candles []market.Candle, persist bool) {
	res := m.analyzer.Analyze(candles)

	m.mu.Lock()
	if m.results == nil {
		m.results = make(map[string]chanlun.Result)
		m.updatedAt = make(map[string]time.Time)
	}
	key := seriesKey(symbol, interval)
	m.results[key] = res
	m.updatedAt[key] = time.Now()
	m.mu.Unlock()

	if !persist || m.structures == nil {
		return
	}
	if _, err := m.structures.SaveSnapshot(ctx, symbol, interval, m.analyzer.StrategyName(), len(candles), res); err != nil {
		logger.Warnf("[monitor] 快照保存失败 %s %s: %v", symbol, interval, err)
		return
	}
	if _, err := m.structures.PruneSnapshots(ctx, symbol, interval, m.snapshotKeep); err != nil {
		logger.Warnf("[monitor] 快照清理失败 %s %s: %v", symbol, interval, err)
	}
}

// refresh 定时任务: 重新解析币种列表,预热新增序列,并按保留数清理快照。
func (m *Monitor) refresh(ctx context.Context) {
	symbols := m.resolveSymbols(ctx)
	tracked := make(map[string]struct{})
	for _, info := range m.ks.Tracked() {
		tracked[seriesKey(info.Symbol, info.Interval)] = struct{}{}
	}

	added := 0
	for _, symbol := range symbols {
		for _, interval := range m.intervals {
			if _, ok := tracked[seriesKey(symbol, interval)]; ok {
				continue
			}
			if err := m.warmSeries(ctx, symbol, interval); err != nil {
				logger.Warnf("[monitor] 新序列预热失败 %s %s: %v", symbol, interval, err)
				continue
			}
			added++
		}
	}
	if added > 0 {
		logger.Infof("[monitor] 定时刷新新增 %d 条序列", added)
	}

	if m.structures == nil {
		return
	}
	for _, info := range m.ks.Tracked() {
		if _, err := m.structures.PruneSnapshots(ctx, info.Symbol, info.Interval, m.snapshotKeep); err != nil {
			logger.Warnf("[monitor] 快照清理失败 %s %s: %v", info.Symbol, info.Interval, err)
		}
	}
}

// Result 返回缓存的分析结果与其更新时间。
func (m *Monitor) Result(symbol, interval string) (chanlun.Result, time.Time, bool) {
	if m == nil {
		return chanlun.Result{}, time.Time{}, false
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := seriesKey(symbol, interval)
	res, ok := m.results[key]
	if !ok {
		return chanlun.Result{}, time.Time{}, false
	}
	return res, m.updatedAt[key], true
}

// AnalyzeNow 绕过缓存,对当前序列立即重跑一次分析并更新缓存。
func (m *Monitor) AnalyzeNow(ctx context.Context, symbol, interval string) (chanlun.Result, error) {
	if m == nil {
		return chanlun.Result{}, errors.New("monitor 未初始化")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	candles, err := m.ks.Get(ctx, symbol, interval)
	if err != nil {
		return chanlun.Result{}, err
	}
	if len(candles) == 0 {
		return chanlun.Result{}, fmt.Errorf("没有 %s %s 的数据", symbol, interval)
	}
	m.reanalyze(ctx, symbol, interval, candles, false)
	res, _, _ := m.Result(symbol, interval)
	return res, nil
}

// Tracked 列出当前维护的序列概要。
func (m *Monitor) Tracked() []store.SeriesInfo {
	if m == nil {
		return nil
	}
	return m.ks.Tracked()
}

// Intervals 返回订阅的周期列表。
func (m *Monitor) Intervals() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.intervals...)
}

// Stats 透传行情源运行指标。
func (m *Monitor) Stats() market.SourceStats {
	if m == nil || m.source == nil {
		return market.SourceStats{}
	}
	return m.source.Stats()
}

// Close 停掉定时任务与行情源。
func (m *Monitor) Close() {
	if m == nil {
		return
	}
	if m.cron != nil {
		m.cron.Stop()
	}
	if m.source != nil {
		_ = m.source.Close()
	}
}
