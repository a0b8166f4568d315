package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// WatchlistYAML represents the structure of watchlists.yaml
type WatchlistYAML struct {
	Watchlists map[string]WatchlistEntry `yaml:"watchlists"`
}

// WatchlistEntry represents a single watchlist in the YAML file
type WatchlistEntry struct {
	Symbols   []string      `yaml:"symbols,omitempty"`
	Intervals []string      `yaml:"intervals,omitempty"`
	Strategy  string        `yaml:"strategy,omitempty"` // dynamic / fixed
	Exchange  ExchangeEntry `yaml:"exchange,omitempty"`
	Analysis  AnalysisEntry `yaml:"analysis,omitempty"`
	Default   bool          `yaml:"default,omitempty"`
}

// ExchangeEntry 交易所自动发现的覆盖项。
type ExchangeEntry struct {
	Enabled        bool   `yaml:"enabled,omitempty"`
	Quote          string `yaml:"quote,omitempty"`
	Override       bool   `yaml:"override,omitempty"`
	RefreshSeconds int    `yaml:"refresh_seconds,omitempty"`
	MaxSymbols     int    `yaml:"max_symbols,omitempty"`
}

// AnalysisEntry 分析阈值的覆盖项,零值沿用全局配置。
type AnalysisEntry struct {
	MinStrokeBars         int     `yaml:"min_stroke_bars,omitempty"`
	MinCenterStrokes      int     `yaml:"min_center_strokes,omitempty"`
	MaxCenterStrokes      int     `yaml:"max_center_strokes,omitempty"`
	MinCenterHeightPct    float64 `yaml:"min_center_height_pct,omitempty"`
	MaxCenterDurationBars int     `yaml:"max_center_duration_bars,omitempty"`
}

// WatchlistWriter handles reading and writing watchlists.yaml
type WatchlistWriter struct {
	path string
	mu   sync.RWMutex
}

// NewWatchlistWriter creates a new WatchlistWriter for the given path
func NewWatchlistWriter(path string) *WatchlistWriter {
	return &WatchlistWriter{path: path}
}

// Read reads the current watchlists.yaml content.
// 文件不存在时返回空表,便于服务首次启动。
func (w *WatchlistWriter) Read() (*WatchlistYAML, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &WatchlistYAML{Watchlists: make(map[string]WatchlistEntry)}, nil
		}
		return nil, fmt.Errorf("读取 watchlists.yaml 失败: %w", err)
	}

	var cfg WatchlistYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 watchlists.yaml 失败: %w", err)
	}

	if cfg.Watchlists == nil {
		cfg.Watchlists = make(map[string]WatchlistEntry)
	}

	return &cfg, nil
}

// Write writes the watchlists to watchlists.yaml with backup
func (w *WatchlistWriter) Write(cfg *WatchlistYAML) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Create backup first
	if err := w.backup(); err != nil {
		return fmt.Errorf("备份失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化 watchlists 失败: %w", err)
	}

	// Write to temp file first, then rename for atomic write
	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换配置文件失败: %w", err)
	}

	return nil
}

// backup creates a backup of the current watchlists.yaml
func (w *WatchlistWriter) backup() error {
	src, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No file to backup
		}
		return err
	}
	defer src.Close()

	backupDir := filepath.Join(filepath.Dir(w.path), "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("watchlists_%s.yaml", timestamp))

	dst, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	if err != nil {
		return err
	}

	// Clean old backups, keep last 10
	w.cleanOldBackups(backupDir, 10)

	return nil
}

func (w *WatchlistWriter) cleanOldBackups(dir string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "watchlists_") && strings.HasSuffix(e.Name(), ".yaml") {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}

	if len(backups) <= keep {
		return
	}

	// Remove oldest backups
	for i := 0; i < len(backups)-keep; i++ {
		os.Remove(backups[i])
	}
}

// Get returns a single watchlist by name
func (w *WatchlistWriter) Get(name string) (*WatchlistEntry, error) {
	cfg, err := w.Read()
	if err != nil {
		return nil, err
	}

	entry, ok := cfg.Watchlists[name]
	if !ok {
		return nil, fmt.Errorf("watchlist '%s' 不存在", name)
	}

	return &entry, nil
}

// Update updates or creates a watchlist
func (w *WatchlistWriter) Update(name string, entry WatchlistEntry) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("watchlist 名称不能为空")
	}

	cfg, err := w.Read()
	if err != nil {
		return err
	}

	// 同一时刻只允许一个 default
	if entry.Default {
		for other, e := range cfg.Watchlists {
			if other != name && e.Default {
				e.Default = false
				cfg.Watchlists[other] = e
			}
		}
	}

	cfg.Watchlists[name] = entry

	return w.Write(cfg)
}

// Delete deletes a watchlist by name
func (w *WatchlistWriter) Delete(name string) error {
	cfg, err := w.Read()
	if err != nil {
		return err
	}

	entry, ok := cfg.Watchlists[name]
	if !ok {
		return fmt.Errorf("watchlist '%s' 不存在", name)
	}

	if entry.Default {
		return fmt.Errorf("不能删除默认 watchlist '%s'", name)
	}

	delete(cfg.Watchlists, name)

	return w.Write(cfg)
}

// Default returns the watchlist marked default, falling back to the only entry.
func (w *WatchlistWriter) Default() (string, *WatchlistEntry, error) {
	cfg, err := w.Read()
	if err != nil {
		return "", nil, err
	}

	for name, entry := range cfg.Watchlists {
		if entry.Default {
			return name, &entry, nil
		}
	}
	if len(cfg.Watchlists) == 1 {
		for name, entry := range cfg.Watchlists {
			return name, &entry, nil
		}
	}
	return "", nil, nil
}

// ActiveSymbols 按 watchlist 名称序汇总所有 symbols 并去重。
func (w *WatchlistWriter) ActiveSymbols() ([]string, error) {
	cfg, err := w.Read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Watchlists))
	for name := range cfg.Watchlists {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		for _, sym := range cfg.Watchlists[name].Symbols {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym == "" {
				continue
			}
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	return out, nil
}

// Path returns the path to watchlists.yaml
func (w *WatchlistWriter) Path() string {
	return w.path
}
