package store

import (
	"context"
	"testing"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

func bar(openTime int64, close float64) market.Candle {
	return market.Candle{
		OpenTime:  openTime,
		CloseTime: openTime + 59_999,
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    10,
	}
}

func TestPutAppendsAndTrims(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	if err := s.Put(ctx, "BTCUSDT", "1m", []market.Candle{bar(0, 100), bar(60_000, 101), bar(120_000, 102)}, 2); err != nil {
		t.Fatalf("Put 失败: %v", err)
	}
	got, err := s.Get(ctx, "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("超出上限应裁剪到 2 根, 实际=%d", len(got))
	}
	if got[0].OpenTime != 60_000 || got[1].OpenTime != 120_000 {
		t.Fatalf("裁剪应保留最新的 K 线, 实际=%v", got)
	}
}

func TestPutUpdatesLastBar(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	_ = s.Put(ctx, "BTCUSDT", "1m", []market.Candle{bar(0, 100)}, 10)
	_ = s.Put(ctx, "BTCUSDT", "1m", []market.Candle{bar(0, 105)}, 10)

	got, _ := s.Get(ctx, "BTCUSDT", "1m")
	if len(got) != 1 {
		t.Fatalf("同 OpenTime 应就地覆盖, 实际=%d 根", len(got))
	}
	if got[0].Close != 105 {
		t.Fatalf("覆盖后收盘价应为 105, 实际=%v", got[0].Close)
	}
}

func TestPutOutOfOrderInsert(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	_ = s.Put(ctx, "ETHUSDT", "1m", []market.Candle{bar(0, 100), bar(120_000, 102)}, 10)
	_ = s.Put(ctx, "ETHUSDT", "1m", []market.Candle{bar(60_000, 101)}, 10)

	got, _ := s.Get(ctx, "ETHUSDT", "1m")
	if len(got) != 3 {
		t.Fatalf("补洞后应有 3 根, 实际=%d", len(got))
	}
	for i, want := range []int64{0, 60_000, 120_000} {
		if got[i].OpenTime != want {
			t.Fatalf("序列应保持升序, 第 %d 根 OpenTime=%d", i, got[i].OpenTime)
		}
	}

	// 乱序位置的同 OpenTime 再次写入应替换而非重复
	_ = s.Put(ctx, "ETHUSDT", "1m", []market.Candle{bar(60_000, 999)}, 10)
	got, _ = s.Get(ctx, "ETHUSDT", "1m")
	if len(got) != 3 || got[1].Close != 999 {
		t.Fatalf("中段替换失败, 实际=%v", got)
	}
}

func TestSetReplacesAndGetCopies(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	_ = s.Put(ctx, "BTCUSDT", "5m", []market.Candle{bar(0, 100)}, 10)
	if err := s.Set(ctx, "BTCUSDT", "5m", []market.Candle{bar(300_000, 200), bar(600_000, 201)}); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}

	got, _ := s.Get(ctx, "BTCUSDT", "5m")
	if len(got) != 2 || got[0].Close != 200 {
		t.Fatalf("Set 应全量替换, 实际=%v", got)
	}

	got[0].Close = -1
	again, _ := s.Get(ctx, "BTCUSDT", "5m")
	if again[0].Close != 200 {
		t.Fatalf("Get 应返回拷贝, 外部修改不应影响存储")
	}
}

func TestExportWindow(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	ks := make([]market.Candle, 0, 5)
	for i := 0; i < 5; i++ {
		ks = append(ks, bar(int64(i)*60_000, 100+float64(i)))
	}
	_ = s.Put(ctx, "BTCUSDT", "1m", ks, 100)

	out, err := s.Export(ctx, "BTCUSDT", "1m", 3)
	if err != nil {
		t.Fatalf("Export 失败: %v", err)
	}
	if len(out) != 3 || out[0].Close != 102 || out[2].Close != 104 {
		t.Fatalf("应导出最近 3 根升序序列, 实际=%v", out)
	}

	if out, _ := s.Export(ctx, "BTCUSDT", "1m", 0); out != nil {
		t.Fatalf("limit<=0 应返回 nil")
	}
	if out, _ := s.Export(ctx, "NONE", "1m", 3); out != nil {
		t.Fatalf("未知序列应返回 nil")
	}
	if _, err := s.Export(ctx, "", "1m", 3); err == nil {
		t.Fatalf("空 symbol 应报错")
	}
}

func TestLastAndTracked(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	if _, ok := s.Last(ctx, "BTCUSDT", "1m"); ok {
		t.Fatalf("空序列 Last 应返回 ok=false")
	}

	_ = s.Put(ctx, "ETHUSDT", "5m", []market.Candle{bar(0, 50)}, 10)
	_ = s.Put(ctx, "BTCUSDT", "1m", []market.Candle{bar(0, 100), bar(60_000, 101)}, 10)

	last, ok := s.Last(ctx, "BTCUSDT", "1m")
	if !ok || last.OpenTime != 60_000 {
		t.Fatalf("Last 应返回末根, 实际=%+v ok=%v", last, ok)
	}

	tracked := s.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("应跟踪 2 条序列, 实际=%d", len(tracked))
	}
	if tracked[0].Symbol != "BTCUSDT" || tracked[0].Interval != "1m" || tracked[0].Count != 2 {
		t.Fatalf("序列概要排序或计数错误, 实际=%+v", tracked)
	}
	if tracked[1].Symbol != "ETHUSDT" || tracked[1].LastOpenTime != 0 {
		t.Fatalf("第二条序列概要错误, 实际=%+v", tracked[1])
	}
}

func TestPutValidation(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()
	if err := s.Put(ctx, "", "1m", []market.Candle{bar(0, 100)}, 10); err == nil {
		t.Fatalf("空 symbol 应报错")
	}
	if err := s.Put(ctx, "BTCUSDT", "1m", nil, 10); err != nil {
		t.Fatalf("空输入应为 no-op, 实际=%v", err)
	}
}
