package writer

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestWriter(t *testing.T) *WatchlistWriter {
	t.Helper()
	return NewWatchlistWriter(filepath.Join(t.TempDir(), "watchlists.yaml"))
}

func TestReadMissingFile(t *testing.T) {
	w := newTestWriter(t)
	cfg, err := w.Read()
	if err != nil {
		t.Fatalf("缺失文件应返回空表: %v", err)
	}
	if cfg.Watchlists == nil || len(cfg.Watchlists) != 0 {
		t.Fatalf("空表结构错误: %+v", cfg)
	}
}

func TestUpdateAndGet(t *testing.T) {
	w := newTestWriter(t)
	entry := WatchlistEntry{
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Intervals: []string{"1m", "30m"},
		Strategy:  "fixed",
		Analysis:  AnalysisEntry{MinStrokeBars: 7},
		Default:   true,
	}
	if err := w.Update("main", entry); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}

	got, err := w.Get("main")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if len(got.Symbols) != 2 || got.Strategy != "fixed" || got.Analysis.MinStrokeBars != 7 || !got.Default {
		t.Fatalf("读回内容错误: %+v", got)
	}

	if _, err := w.Get("missing"); err == nil {
		t.Fatalf("缺失 watchlist 应报错")
	}
	if err := w.Update("  ", entry); err == nil {
		t.Fatalf("空名称应报错")
	}
}

func TestUpdateKeepsSingleDefault(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Update("a", WatchlistEntry{Symbols: []string{"BTCUSDT"}, Default: true}); err != nil {
		t.Fatalf("Update a 失败: %v", err)
	}
	if err := w.Update("b", WatchlistEntry{Symbols: []string{"ETHUSDT"}, Default: true}); err != nil {
		t.Fatalf("Update b 失败: %v", err)
	}

	cfg, err := w.Read()
	if err != nil {
		t.Fatalf("Read 失败: %v", err)
	}
	if cfg.Watchlists["a"].Default {
		t.Fatalf("旧 default 应被取消")
	}
	if !cfg.Watchlists["b"].Default {
		t.Fatalf("新 default 应保留")
	}

	name, entry, err := w.Default()
	if err != nil || name != "b" || entry == nil {
		t.Fatalf("Default 应返回 b: %s %v %v", name, entry, err)
	}
}

func TestDelete(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Update("main", WatchlistEntry{Symbols: []string{"BTCUSDT"}, Default: true}); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}
	if err := w.Update("alts", WatchlistEntry{Symbols: []string{"SOLUSDT"}}); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}

	if err := w.Delete("missing"); err == nil {
		t.Fatalf("删除缺失项应报错")
	}
	if err := w.Delete("main"); err == nil {
		t.Fatalf("默认 watchlist 不应允许删除")
	}
	if err := w.Delete("alts"); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	if _, err := w.Get("alts"); err == nil {
		t.Fatalf("删除后仍可读到")
	}
}

func TestDefaultFallback(t *testing.T) {
	w := newTestWriter(t)

	name, entry, err := w.Default()
	if err != nil || name != "" || entry != nil {
		t.Fatalf("空表 Default 应返回空: %s %v %v", name, entry, err)
	}

	if err := w.Update("only", WatchlistEntry{Symbols: []string{"BTCUSDT"}}); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}
	name, entry, err = w.Default()
	if err != nil || name != "only" || entry == nil {
		t.Fatalf("唯一条目应作为回退 default: %s %v %v", name, entry, err)
	}
}

func TestActiveSymbols(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Update("alts", WatchlistEntry{Symbols: []string{"ethusdt", "SOLUSDT"}}); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}
	if err := w.Update("base", WatchlistEntry{Symbols: []string{"BTCUSDT", "ethusdt", " "}}); err != nil {
		t.Fatalf("Update 失败: %v", err)
	}

	out, err := w.ActiveSymbols()
	if err != nil {
		t.Fatalf("ActiveSymbols 失败: %v", err)
	}
	want := []string{"ETHUSDT", "SOLUSDT", "BTCUSDT"}
	if len(out) != len(want) {
		t.Fatalf("数量错误: %v", out)
	}
	for i, sym := range want {
		if out[i] != sym {
			t.Fatalf("第 %d 个应为 %s, 实际=%v", i, sym, out)
		}
	}
}

func TestWriteCreatesBackup(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Update("main", WatchlistEntry{Symbols: []string{"BTCUSDT"}}); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	// 第二次写入前会备份现有文件
	if err := w.Update("main", WatchlistEntry{Symbols: []string{"BTCUSDT", "ETHUSDT"}}); err != nil {
		t.Fatalf("二次写入失败: %v", err)
	}

	backupDir := filepath.Join(filepath.Dir(w.Path()), "backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("读取备份目录失败: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("应生成备份文件")
	}
}
