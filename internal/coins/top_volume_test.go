package coins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
)

func TestRankByQuoteVolume(t *testing.T) {
	stats := []*futures.PriceChangeStats{
		{Symbol: "ethusdt", QuoteVolume: "200.5"},
		{Symbol: "BTCUSDT", QuoteVolume: "900"},
		{Symbol: "ETHBTC", QuoteVolume: "9999"},
		{Symbol: "BTCUSDT_240927", QuoteVolume: "500"},
		{Symbol: "BADUSDT", QuoteVolume: "not-a-number"},
		{Symbol: "ZEROUSDT", QuoteVolume: "0"},
		{Symbol: "AAAUSDT", QuoteVolume: "200.5"},
		nil,
	}

	got := rankByQuoteVolume(stats, "USDT", 10)
	want := []string{"BTCUSDT", "AAAUSDT", "ETHUSDT"}
	if len(got) != len(want) {
		t.Fatalf("榜单应为 %v, 实际=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("榜单第 %d 位应为 %s, 实际=%s", i, want[i], got[i])
		}
	}

	if top2 := rankByQuoteVolume(stats, "USDT", 2); len(top2) != 2 || top2[1] != "AAAUSDT" {
		t.Fatalf("top=2 应截断为 [BTCUSDT AAAUSDT], 实际=%v", top2)
	}
}

func TestTopVolumeProviderRefresh(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"ETHUSDT","quoteVolume":"200"},
			{"symbol":"BTCUSDT","quoteVolume":"900"},
			{"symbol":"ETHBTC","quoteVolume":"9999"}
		]`))
	}))
	defer srv.Close()

	client := futures.NewClient("", "")
	client.BaseURL = srv.URL
	p := NewTopVolumeProvider(client, TopVolumeConfig{Top: 5, Fallback: []string{"sol"}})

	if got := p.Targets(); len(got) != 1 || got[0] != "SOLUSDT" {
		t.Fatalf("刷新前应为 fallback, 实际=%v", got)
	}

	syms, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if len(syms) != 2 || syms[0] != "BTCUSDT" || syms[1] != "ETHUSDT" {
		t.Fatalf("榜单应为 [BTCUSDT ETHUSDT], 实际=%v", syms)
	}

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("间隔内的 Refresh 不应报错: %v", err)
	}
	if calls != 1 {
		t.Fatalf("刷新间隔内不应重复请求, 实际请求数=%d", calls)
	}
}

func TestTopVolumeProviderKeepsTargetsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := futures.NewClient("", "")
	client.BaseURL = srv.URL
	p := NewTopVolumeProvider(client, TopVolumeConfig{Fallback: []string{"btc"}})

	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("上游 500 时 Refresh 应报错")
	}
	if p.LastError() == nil {
		t.Fatal("LastError 应记录失败原因")
	}

	syms, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("有 fallback 时 List 不应报错: %v", err)
	}
	if len(syms) != 1 || syms[0] != "BTCUSDT" {
		t.Fatalf("失败时应沿用 fallback, 实际=%v", syms)
	}
}
