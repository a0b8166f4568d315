package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
)

// StructureStore 将每轮结构分析的结果落到 SQLite,供回看与图表接口查询。
type StructureStore struct {
	mu sync.Mutex
	db *sql.DB
}

// SnapshotRecord analysis_snapshots 表的一行。ListSnapshots 返回时不带 Payload。
type SnapshotRecord struct {
	ID                string `json:"id"`
	Symbol            string `json:"symbol"`
	Interval          string `json:"interval"`
	Strategy          string `json:"strategy"`
	CapturedAt        int64  `json:"captured_at"`
	Bars              int    `json:"bars"`
	MergedBars        int    `json:"merged_bars"`
	Fractals          int    `json:"fractals"`
	ConfirmedFractals int    `json:"confirmed_fractals"`
	Strokes           int    `json:"strokes"`
	Centers           int    `json:"centers"`
	CurrentCenterID   string `json:"current_center_id,omitempty"`
	Payload           string `json:"payload,omitempty"`
}

// CenterRecord structure_centers 表的一行。
type CenterRecord struct {
	SnapshotID   string  `json:"snapshot_id"`
	CenterID     string  `json:"center_id"`
	Symbol       string  `json:"symbol"`
	Interval     string  `json:"interval"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Middle       float64 `json:"middle"`
	HeightPct    float64 `json:"height_pct"`
	Strokes      int     `json:"strokes"`
	StartTime    int64   `json:"start_time"`
	EndTime      int64   `json:"end_time"`
	DurationBars int     `json:"duration_bars"`
	Strength     float64 `json:"strength"`
	Completed    bool    `json:"completed"`
}

// OpenStructureStore 打开(或创建)数据库,启用 WAL 并执行建表迁移。
func OpenStructureStore(path string) (*StructureStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("数据库路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	s := &StructureStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Infof("[database] structure store 已打开: %s", path)
	return s, nil
}

func (s *StructureStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_snapshots (
			id                 TEXT PRIMARY KEY,
			symbol             TEXT NOT NULL,
			interval           TEXT NOT NULL,
			strategy           TEXT NOT NULL DEFAULT '',
			captured_at        INTEGER NOT NULL,
			bars               INTEGER NOT NULL DEFAULT 0,
			merged_bars        INTEGER NOT NULL DEFAULT 0,
			fractals           INTEGER NOT NULL DEFAULT 0,
			confirmed_fractals INTEGER NOT NULL DEFAULT 0,
			strokes            INTEGER NOT NULL DEFAULT 0,
			centers            INTEGER NOT NULL DEFAULT 0,
			payload            TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_series ON analysis_snapshots(symbol, interval, captured_at)`,

		`CREATE TABLE IF NOT EXISTS structure_centers (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id   TEXT NOT NULL,
			center_id     TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			interval      TEXT NOT NULL,
			high          REAL NOT NULL,
			low           REAL NOT NULL,
			middle        REAL NOT NULL,
			height_pct    REAL NOT NULL,
			strokes       INTEGER NOT NULL,
			start_time    INTEGER NOT NULL,
			end_time      INTEGER NOT NULL,
			duration_bars INTEGER NOT NULL,
			strength      REAL NOT NULL,
			completed     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_centers_series ON structure_centers(symbol, interval, end_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	s.addCurrentCenterColumn()
	return nil
}

// addCurrentCenterColumn 为早期库补 current_center_id 列（幂等）。
func (s *StructureStore) addCurrentCenterColumn() {
	if _, err := s.db.Exec("ALTER TABLE analysis_snapshots ADD COLUMN current_center_id TEXT"); err != nil {
		// 忽略已存在错误
		return
	}
}

// SaveSnapshot 持久化一轮分析结果,返回快照 ID。
// 快照主体整体序列化进 payload,有效中枢另外展开到 structure_centers 便于按序查询。
func (s *StructureStore) SaveSnapshot(ctx context.Context, symbol, interval, strategy string, bars int, result chanlun.Result) (string, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return "", fmt.Errorf("structure store 未初始化")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", fmt.Errorf("symbol 不能为空")
	}
	iv := strings.ToLower(strings.TrimSpace(interval))
	if iv == "" {
		return "", fmt.Errorf("interval 不能为空")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("序列化分析结果失败: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	currentID := ""
	if result.CurrentCenter != nil {
		currentID = result.CurrentCenter.ID
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO analysis_snapshots
            (id, symbol, interval, strategy, captured_at, bars, merged_bars,
             fractals, confirmed_fractals, strokes, centers, current_center_id, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sym, iv, strategy, now, bars, len(result.Merged),
		len(result.Fractals), result.ConfirmedFractals, len(result.Strokes),
		len(result.Centers), nullIfEmpty(currentID), string(payload)); err != nil {
		return "", err
	}
	for _, center := range result.Centers {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO structure_centers
                (snapshot_id, center_id, symbol, interval, high, low, middle, height_pct,
                 strokes, start_time, end_time, duration_bars, strength, completed)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, center.ID, sym, iv, center.High, center.Low, center.Middle, center.HeightPct,
			len(center.Strokes), center.StartTime, center.EndTime, center.DurationBars,
			center.Strength, boolToInt(center.IsCompleted)); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListSnapshots 返回某条序列最近的快照概要（按时间倒序,不含 payload）。
func (s *StructureStore) ListSnapshots(ctx context.Context, symbol, interval string, limit int) ([]SnapshotRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("structure store 未初始化")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	iv := strings.ToLower(strings.TrimSpace(interval))
	rows, err := db.QueryContext(ctx, `
        SELECT id, symbol, interval, strategy, captured_at, bars, merged_bars,
               fractals, confirmed_fractals, strokes, centers, current_center_id
        FROM analysis_snapshots
        WHERE symbol=? AND interval=?
        ORDER BY captured_at DESC, id DESC
        LIMIT ?`, sym, iv, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var current sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Interval, &rec.Strategy, &rec.CapturedAt,
			&rec.Bars, &rec.MergedBars, &rec.Fractals, &rec.ConfirmedFractals,
			&rec.Strokes, &rec.Centers, &current); err != nil {
			return nil, err
		}
		rec.CurrentCenterID = stringOrEmpty(current)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSnapshot 读取单条快照（含 payload）,不存在时返回 nil。
func (s *StructureStore) GetSnapshot(ctx context.Context, id string) (*SnapshotRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("structure store 未初始化")
	}
	row := db.QueryRowContext(ctx, `
        SELECT id, symbol, interval, strategy, captured_at, bars, merged_bars,
               fractals, confirmed_fractals, strokes, centers, current_center_id, payload
        FROM analysis_snapshots WHERE id=?`, strings.TrimSpace(id))
	var rec SnapshotRecord
	var current sql.NullString
	if err := row.Scan(&rec.ID, &rec.Symbol, &rec.Interval, &rec.Strategy, &rec.CapturedAt,
		&rec.Bars, &rec.MergedBars, &rec.Fractals, &rec.ConfirmedFractals,
		&rec.Strokes, &rec.Centers, &current, &rec.Payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.CurrentCenterID = stringOrEmpty(current)
	return &rec, nil
}

// DecodeSnapshot 还原快照里的完整分析结果。
func (rec *SnapshotRecord) DecodeSnapshot() (chanlun.Result, error) {
	var result chanlun.Result
	if rec == nil || rec.Payload == "" {
		return result, fmt.Errorf("快照不含 payload")
	}
	if err := json.Unmarshal([]byte(rec.Payload), &result); err != nil {
		return result, fmt.Errorf("解析快照 payload 失败: %w", err)
	}
	return result, nil
}

// ListCenters 返回某条序列最近的中枢记录（按结束时间倒序）。
func (s *StructureStore) ListCenters(ctx context.Context, symbol, interval string, limit int) ([]CenterRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("structure store 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	iv := strings.ToLower(strings.TrimSpace(interval))
	rows, err := db.QueryContext(ctx, `
        SELECT snapshot_id, center_id, symbol, interval, high, low, middle, height_pct,
               strokes, start_time, end_time, duration_bars, strength, completed
        FROM structure_centers
        WHERE symbol=? AND interval=?
        ORDER BY end_time DESC, id DESC
        LIMIT ?`, sym, iv, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CenterRecord
	for rows.Next() {
		var rec CenterRecord
		var completed int
		if err := rows.Scan(&rec.SnapshotID, &rec.CenterID, &rec.Symbol, &rec.Interval,
			&rec.High, &rec.Low, &rec.Middle, &rec.HeightPct, &rec.Strokes,
			&rec.StartTime, &rec.EndTime, &rec.DurationBars, &rec.Strength, &completed); err != nil {
			return nil, err
		}
		rec.Completed = completed != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneSnapshots 仅保留某条序列最新的 keep 条快照,连同其中枢记录一并清理。
func (s *StructureStore) PruneSnapshots(ctx context.Context, symbol, interval string, keep int) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("structure store 未初始化")
	}
	if keep <= 0 {
		keep = 100
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	iv := strings.ToLower(strings.TrimSpace(interval))
	res, err := db.ExecContext(ctx, `
        DELETE FROM analysis_snapshots
        WHERE symbol=? AND interval=? AND id NOT IN (
            SELECT id FROM analysis_snapshots
            WHERE symbol=? AND interval=?
            ORDER BY captured_at DESC, id DESC
            LIMIT ?
        )`, sym, iv, sym, iv, keep)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		if _, err := db.ExecContext(ctx, `
            DELETE FROM structure_centers
            WHERE snapshot_id NOT IN (SELECT id FROM analysis_snapshots)`); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *StructureStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
