package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// KlineStore 抽象：读写 symbol+interval 的序列
type KlineStore interface {
	Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error
	Get(ctx context.Context, symbol, interval string) ([]market.Candle, error)
}

// SnapshotExporter 导出固定窗口 K 线的抽象。
type SnapshotExporter interface {
	Export(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// SeriesInfo 一条 symbol+interval 序列的概要。
type SeriesInfo struct {
	Symbol       string `json:"symbol"`
	Interval     string `json:"interval"`
	Count        int    `json:"count"`
	LastOpenTime int64  `json:"last_open_time"`
}

// MemoryKlineStore 内存实现,按 OpenTime 升序维护每条序列。
type MemoryKlineStore struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

func NewMemoryKlineStore() *MemoryKlineStore {
	return &MemoryKlineStore{data: make(map[string][]market.Candle)}
}

func key(symbol, interval string) string { return symbol + "@" + interval }

// Put 追加并裁剪。末根同 OpenTime 视为增量更新就地覆盖;
// 乱序到达的 K 线(断线重连补洞)按 OpenTime 插入或替换,保持序列升序。
func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	if len(ks) == 0 {
		return nil
	}
	if max <= 0 {
		max = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, interval)
	cur := s.data[k]
	for _, candle := range ks {
		n := len(cur)
		if n == 0 || candle.OpenTime > cur[n-1].OpenTime {
			cur = append(cur, candle)
			continue
		}
		if cur[n-1].OpenTime == candle.OpenTime {
			// 同一根 K 线的增量更新，覆盖末尾而非重复追加。
			cur[n-1] = candle
			continue
		}
		pos := sort.Search(n, func(i int) bool { return cur[i].OpenTime >= candle.OpenTime })
		if pos < n && cur[pos].OpenTime == candle.OpenTime {
			cur[pos] = candle
			continue
		}
		cur = append(cur, market.Candle{})
		copy(cur[pos+1:], cur[pos:])
		cur[pos] = candle
	}
	if len(cur) > max {
		cur = cur[len(cur)-max:]
	}
	s.data[k] = cur
	return nil
}

// Set 全量替换指定 symbol+interval 的序列
func (s *MemoryKlineStore) Set(ctx context.Context, symbol, interval string, ks []market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, interval)
	dst := make([]market.Candle, len(ks))
	copy(dst, ks)
	s.data[k] = dst
	return nil
}

// Get 返回拷贝
func (s *MemoryKlineStore) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	out := make([]market.Candle, len(cur))
	copy(out, cur)
	return out, nil
}

// Last 返回序列末根 K 线,序列为空时 ok=false。
func (s *MemoryKlineStore) Last(ctx context.Context, symbol, interval string) (market.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	if len(cur) == 0 {
		return market.Candle{}, false
	}
	return cur[len(cur)-1], true
}

// Export 返回最近 limit 根 K 线（按时间升序）
func (s *MemoryKlineStore) Export(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	if len(cur) == 0 {
		return nil, nil
	}
	if limit > len(cur) {
		limit = len(cur)
	}
	out := make([]market.Candle, limit)
	copy(out, cur[len(cur)-limit:])
	return out, nil
}

// Tracked 列出当前维护的全部序列,按 symbol+interval 排序。
func (s *MemoryKlineStore) Tracked() []SeriesInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SeriesInfo, 0, len(s.data))
	for k, cur := range s.data {
		info := SeriesInfo{Count: len(cur)}
		for i := 0; i < len(k); i++ {
			if k[i] == '@' {
				info.Symbol = k[:i]
				info.Interval = k[i+1:]
				break
			}
		}
		if len(cur) > 0 {
			info.LastOpenTime = cur[len(cur)-1].OpenTime
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Interval < out[j].Interval
	})
	return out
}
