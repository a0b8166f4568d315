package coins

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
)

// TopVolumeConfig 成交额榜币种发现配置。
type TopVolumeConfig struct {
	Quote          string   // 计价币,默认 USDT
	Top            int      // 保留榜单前 N, 默认 30
	RefreshSeconds int      // 刷新间隔,默认 15 分钟
	TimeoutSeconds int      // 单次请求超时
	Fallback       []string // 拉取失败前的初始列表
}

// TopVolumeProvider 按 24 小时成交额从合约行情挑选最活跃的交易对。
// 榜单本身就是一次选择,刷新成功后直接替换目标列表而不与 fallback 合并。
type TopVolumeProvider struct {
	client         *futures.Client
	quote          string
	top            int
	timeout        time.Duration
	refreshSeconds int

	mu          sync.RWMutex
	targets     []string
	lastFetched time.Time
	lastErr     error
}

// NewTopVolumeProvider 创建 TopVolumeProvider。client 为 nil 时使用公共客户端。
func NewTopVolumeProvider(client *futures.Client, cfg TopVolumeConfig) *TopVolumeProvider {
	if client == nil {
		client = futures.NewClient("", "")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	refreshSeconds := cfg.RefreshSeconds
	if refreshSeconds <= 0 {
		refreshSeconds = 900
	}
	quote := strings.ToUpper(strings.TrimSpace(cfg.Quote))
	if quote == "" {
		quote = "USDT"
	}
	top := cfg.Top
	if top <= 0 {
		top = 30
	}

	fallback, _ := NormalizeSymbols(cfg.Fallback)

	return &TopVolumeProvider{
		client:         client,
		quote:          quote,
		top:            top,
		timeout:        timeout,
		refreshSeconds: refreshSeconds,
		targets:        fallback,
	}
}

// Name 实现 SymbolProvider 接口
func (p *TopVolumeProvider) Name() string { return "top_volume" }

// List 实现 SymbolProvider 接口
func (p *TopVolumeProvider) List(ctx context.Context) ([]string, error) {
	_ = p.Refresh(ctx)
	targets := p.Targets()
	if len(targets) == 0 {
		return nil, errors.New("no symbols available")
	}
	return targets, nil
}

// Targets 返回当前的交易对列表
func (p *TopVolumeProvider) Targets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.targets))
	copy(out, p.targets)
	return out
}

// LastError 返回最近一次刷新失败的原因。
func (p *TopVolumeProvider) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Refresh 在超出刷新间隔时重拉 24 小时行情并重排榜单。
func (p *TopVolumeProvider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	lastFetched := p.lastFetched
	p.mu.RUnlock()

	if !lastFetched.IsZero() && time.Since(lastFetched) < time.Duration(p.refreshSeconds)*time.Second {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	stats, err := p.client.NewListPriceChangeStatsService().Do(reqCtx)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		logger.Warnf("[coins] 24h 行情获取失败，沿用现有列表: %v", err)
		return err
	}

	ranked := rankByQuoteVolume(stats, p.quote, p.top)
	if len(ranked) == 0 {
		err := errors.New("no symbols ranked by quote volume")
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.targets = ranked
	p.lastFetched = time.Now()
	p.lastErr = nil
	p.mu.Unlock()

	logger.Infof("[coins] 成交额榜更新成功，共 %d 个", len(ranked))
	return nil
}

// rankByQuoteVolume 过滤指定计价币的永续对 (带下划线的交割合约除外),
// 按 24h 计价币成交额降序排列,同额按名称排序,截断到前 top 个。
func rankByQuoteVolume(stats []*futures.PriceChangeStats, quote string, top int) []string {
	type entry struct {
		symbol string
		volume float64
	}
	quote = strings.ToUpper(quote)
	entries := make([]entry, 0, len(stats))
	for _, s := range stats {
		if s == nil {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(s.Symbol))
		if symbol == "" || strings.Contains(symbol, "_") {
			continue
		}
		if !strings.HasSuffix(symbol, quote) {
			continue
		}
		vol, err := strconv.ParseFloat(s.QuoteVolume, 64)
		if err != nil || vol <= 0 {
			continue
		}
		entries = append(entries, entry{symbol: symbol, volume: vol})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].volume != entries[j].volume {
			return entries[i].volume > entries[j].volume
		}
		return entries[i].symbol < entries[j].symbol
	})
	if top > 0 && len(entries) > top {
		entries = entries[:top]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.symbol)
	}
	return out
}
