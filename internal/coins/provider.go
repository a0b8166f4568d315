package coins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
)

type SymbolProvider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

func NormalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, "USDT") {
			s += "USDT"
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("symbol list is empty after normalization")
	}
	return out, nil
}

type DefaultSymbolProvider struct{ symbols []string }

func NewDefaultProvider(symbols []string) *DefaultSymbolProvider {
	return &DefaultSymbolProvider{symbols: symbols}
}

func (p *DefaultSymbolProvider) Name() string { return "default" }

func (p *DefaultSymbolProvider) List(_ context.Context) ([]string, error) {
	return NormalizeSymbols(p.symbols)
}

type HTTPSymbolProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPSymbolProvider(url string) *HTTPSymbolProvider {
	return &HTTPSymbolProvider{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPSymbolProvider) Name() string { return "http" }

func (p *HTTPSymbolProvider) List(ctx context.Context) ([]string, error) {
	if p.URL == "" {
		return nil, errors.New("symbol API URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching symbols: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var arr []string
	if err := json.Unmarshal(body, &arr); err == nil {
		return NormalizeSymbols(arr)
	}

	var obj struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return NormalizeSymbols(obj.Symbols)
}

// ExchangeSymbolConfig 交易所币种发现配置。
type ExchangeSymbolConfig struct {
	Quote          string   // 计价币,默认 USDT
	RefreshSeconds int      // 刷新间隔,默认 1 小时
	TimeoutSeconds int      // 单次请求超时
	MaxSymbols     int      // 截断上限,0 表示不截断
	Fallback       []string // 静态备选列表
	Override       bool     // true 时交易所结果覆盖 fallback
}

// ExchangeSymbolProvider 从 Binance 合约 exchangeInfo 发现可交易的永续对,
// 拉取失败时退回静态 fallback,支持后台定时刷新。
type ExchangeSymbolProvider struct {
	client         *futures.Client
	quote          string
	timeout        time.Duration
	refreshSeconds int
	maxSymbols     int
	fallback       []string
	override       bool

	mu          sync.RWMutex
	targets     []string
	lastFetched time.Time
	lastErr     error
}

// NewExchangeSymbolProvider 创建 ExchangeSymbolProvider。client 为 nil 时使用公共客户端。
func NewExchangeSymbolProvider(client *futures.Client, cfg ExchangeSymbolConfig) *ExchangeSymbolProvider {
	if client == nil {
		client = futures.NewClient("", "")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	refreshSeconds := cfg.RefreshSeconds
	if refreshSeconds <= 0 {
		refreshSeconds = 3600
	}
	quote := strings.ToUpper(strings.TrimSpace(cfg.Quote))
	if quote == "" {
		quote = "USDT"
	}

	fallback, _ := NormalizeSymbols(cfg.Fallback)

	return &ExchangeSymbolProvider{
		client:         client,
		quote:          quote,
		timeout:        timeout,
		refreshSeconds: refreshSeconds,
		maxSymbols:     cfg.MaxSymbols,
		fallback:       fallback,
		override:       cfg.Override,
		targets:        fallback,
	}
}

// Name 实现 SymbolProvider 接口
func (p *ExchangeSymbolProvider) Name() string { return "exchange" }

// List 实现 SymbolProvider 接口
func (p *ExchangeSymbolProvider) List(ctx context.Context) ([]string, error) {
	_ = p.Refresh(ctx)
	targets := p.Targets()
	if len(targets) == 0 {
		return nil, errors.New("no symbols available")
	}
	return targets, nil
}

// Targets 返回当前的交易对列表
func (p *ExchangeSymbolProvider) Targets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.targets))
	copy(out, p.targets)
	return out
}

// LastError 返回最近一次刷新失败的原因。
func (p *ExchangeSymbolProvider) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Refresh 在超出刷新间隔时从交易所重拉币种列表。
func (p *ExchangeSymbolProvider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	lastFetched := p.lastFetched
	p.mu.RUnlock()

	if !lastFetched.IsZero() && time.Since(lastFetched) < time.Duration(p.refreshSeconds)*time.Second {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	info, err := p.client.NewExchangeInfoService().Do(reqCtx)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		logger.Warnf("[coins] exchangeInfo 获取失败，使用 fallback: %v", err)
		return err
	}

	symbols := filterPerpetuals(info.Symbols, p.quote, p.maxSymbols)
	if len(symbols) == 0 {
		err := errors.New("exchangeInfo returned no tradable symbols")
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.override {
		p.targets = symbols
	} else {
		p.targets = mergeAndDedup(symbols, p.fallback)
	}
	p.lastFetched = time.Now()
	p.lastErr = nil

	logger.Infof("[coins] 更新币种列表成功，共 %d 个", len(p.targets))
	return nil
}

// StartAutoRefresh 启动后台自动刷新
func (p *ExchangeSymbolProvider) StartAutoRefresh(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		logger.Warnf("[coins] 初始刷新失败: %v", err)
	}

	go func() {
		ticker := time.NewTicker(time.Duration(p.refreshSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					logger.Warnf("[coins] 定时刷新失败: %v", err)
				}
			}
		}
	}()
}

// filterPerpetuals 只保留处于交易状态的指定计价永续合约,按名称排序并按需截断。
func filterPerpetuals(symbols []futures.Symbol, quote string, max int) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s.Status != "TRADING" {
			continue
		}
		if s.ContractType != "PERPETUAL" {
			continue
		}
		if !strings.EqualFold(s.QuoteAsset, quote) {
			continue
		}
		out = append(out, strings.ToUpper(s.Symbol))
	}
	sort.Strings(out)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// mergeAndDedup 合并并去重
func mergeAndDedup(a, b []string) []string {
	seen := make(map[string]struct{})
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
