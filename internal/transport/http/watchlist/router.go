package watchlist

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/config/writer"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
)

// Router handles watchlist API endpoints
type Router struct {
	writer    *writer.WatchlistWriter
	intervals []string
}

// NewRouter creates a new watchlist API router.
// knownIntervals 列出服务端支持的周期,供前端下拉选择。
func NewRouter(w *writer.WatchlistWriter, knownIntervals []string) *Router {
	return &Router{
		writer:    w,
		intervals: knownIntervals,
	}
}

// Register registers the watchlist API routes
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("", r.handleList)
	group.GET("/:name", r.handleGet)
	group.PUT("/:name", r.handleUpdate)
	group.POST("", r.handleCreate)
	group.DELETE("/:name", r.handleDelete)
	group.GET("/meta/intervals", r.handleListIntervals)
}

// WatchlistResponse is the API response for a watchlist
type WatchlistResponse struct {
	Name      string       `json:"name"`
	Symbols   []string     `json:"symbols"`
	Intervals []string     `json:"intervals"`
	Strategy  string       `json:"strategy,omitempty"`
	Exchange  ExchangeInfo `json:"exchange"`
	Analysis  AnalysisInfo `json:"analysis"`
	Default   bool         `json:"default"`
}

type ExchangeInfo struct {
	Enabled        bool   `json:"enabled"`
	Quote          string `json:"quote,omitempty"`
	Override       bool   `json:"override,omitempty"`
	RefreshSeconds int    `json:"refresh_seconds,omitempty"`
	MaxSymbols     int    `json:"max_symbols,omitempty"`
}

type AnalysisInfo struct {
	MinStrokeBars         int     `json:"min_stroke_bars,omitempty"`
	MinCenterStrokes      int     `json:"min_center_strokes,omitempty"`
	MaxCenterStrokes      int     `json:"max_center_strokes,omitempty"`
	MinCenterHeightPct    float64 `json:"min_center_height_pct,omitempty"`
	MaxCenterDurationBars int     `json:"max_center_duration_bars,omitempty"`
}

// WatchlistUpdateRequest is the request body for updating a watchlist
type WatchlistUpdateRequest struct {
	Symbols   []string      `json:"symbols"`
	Intervals []string      `json:"intervals,omitempty"`
	Strategy  string        `json:"strategy,omitempty"`
	Exchange  *ExchangeInfo `json:"exchange,omitempty"`
	Analysis  *AnalysisInfo `json:"analysis,omitempty"`
	Default   bool          `json:"default"`
}

// WatchlistCreateRequest is the request body for creating a watchlist
type WatchlistCreateRequest struct {
	Name     string `json:"name"`
	CopyFrom string `json:"copy_from,omitempty"`
	WatchlistUpdateRequest
}

func (r *Router) handleList(c *gin.Context) {
	cfg, err := r.writer.Read()
	if err != nil {
		logger.Errorf("[watchlist-api] list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var lists []WatchlistResponse
	for name, entry := range cfg.Watchlists {
		lists = append(lists, entryToResponse(name, entry))
	}

	// Sort by name for consistent ordering
	sort.Slice(lists, func(i, j int) bool {
		return lists[i].Name < lists[j].Name
	})

	c.JSON(http.StatusOK, gin.H{"watchlists": lists})
}

func (r *Router) handleGet(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 watchlist 名称"})
		return
	}

	entry, err := r.writer.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entryToResponse(name, *entry))
}

func (r *Router) handleUpdate(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 watchlist 名称"})
		return
	}

	var req WatchlistUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	existing, err := r.writer.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	applyRequest(existing, req)

	if err := r.writer.Update(name, *existing); err != nil {
		logger.Errorf("[watchlist-api] update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("[watchlist-api] watchlist '%s' updated by %s", name, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Watchlist 已更新"})
}

func (r *Router) handleCreate(c *gin.Context) {
	var req WatchlistCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Watchlist 名称不能为空"})
		return
	}

	// Check if name is valid (alphanumeric and underscores only)
	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_') {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Watchlist 名称只能包含字母、数字和下划线"})
			return
		}
	}

	cfg, err := r.writer.Read()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if _, exists := cfg.Watchlists[name]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Watchlist 已存在"})
		return
	}

	var entry writer.WatchlistEntry

	// Copy from existing watchlist if specified
	if req.CopyFrom != "" {
		source, ok := cfg.Watchlists[req.CopyFrom]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "源 Watchlist 不存在"})
			return
		}
		entry = source
		entry.Default = false // New watchlist shouldn't be default
	} else {
		entry = writer.WatchlistEntry{
			Intervals: []string{"15m", "1h", "4h"},
			Strategy:  "dynamic",
		}
	}

	applyRequest(&entry, req.WatchlistUpdateRequest)

	if err := r.writer.Update(name, entry); err != nil {
		logger.Errorf("[watchlist-api] create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("[watchlist-api] watchlist '%s' created by %s", name, c.ClientIP())
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Watchlist 已创建", "name": name})
}

func (r *Router) handleDelete(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 watchlist 名称"})
		return
	}

	if err := r.writer.Delete(name); err != nil {
		logger.Errorf("[watchlist-api] delete failed: %v", err)
		if strings.Contains(err.Error(), "不存在") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else if strings.Contains(err.Error(), "默认") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	logger.Infof("[watchlist-api] watchlist '%s' deleted by %s", name, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Watchlist 已删除"})
}

func (r *Router) handleListIntervals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"intervals": r.intervals})
}

func applyRequest(entry *writer.WatchlistEntry, req WatchlistUpdateRequest) {
	if req.Symbols != nil {
		entry.Symbols = normalizeSymbols(req.Symbols)
	}
	if len(req.Intervals) > 0 {
		entry.Intervals = normalizeIntervals(req.Intervals)
	}
	if req.Strategy != "" {
		entry.Strategy = strings.ToLower(strings.TrimSpace(req.Strategy))
	}
	if req.Exchange != nil {
		entry.Exchange = writer.ExchangeEntry{
			Enabled:        req.Exchange.Enabled,
			Quote:          strings.ToUpper(strings.TrimSpace(req.Exchange.Quote)),
			Override:       req.Exchange.Override,
			RefreshSeconds: req.Exchange.RefreshSeconds,
			MaxSymbols:     req.Exchange.MaxSymbols,
		}
	}
	if req.Analysis != nil {
		entry.Analysis = writer.AnalysisEntry{
			MinStrokeBars:         req.Analysis.MinStrokeBars,
			MinCenterStrokes:      req.Analysis.MinCenterStrokes,
			MaxCenterStrokes:      req.Analysis.MaxCenterStrokes,
			MinCenterHeightPct:    req.Analysis.MinCenterHeightPct,
			MaxCenterDurationBars: req.Analysis.MaxCenterDurationBars,
		}
	}
	entry.Default = req.Default
}

func entryToResponse(name string, entry writer.WatchlistEntry) WatchlistResponse {
	return WatchlistResponse{
		Name:      name,
		Symbols:   entry.Symbols,
		Intervals: entry.Intervals,
		Strategy:  entry.Strategy,
		Exchange: ExchangeInfo{
			Enabled:        entry.Exchange.Enabled,
			Quote:          entry.Exchange.Quote,
			Override:       entry.Exchange.Override,
			RefreshSeconds: entry.Exchange.RefreshSeconds,
			MaxSymbols:     entry.Exchange.MaxSymbols,
		},
		Analysis: AnalysisInfo{
			MinStrokeBars:         entry.Analysis.MinStrokeBars,
			MinCenterStrokes:      entry.Analysis.MinCenterStrokes,
			MaxCenterStrokes:      entry.Analysis.MaxCenterStrokes,
			MinCenterHeightPct:    entry.Analysis.MinCenterHeightPct,
			MaxCenterDurationBars: entry.Analysis.MaxCenterDurationBars,
		},
		Default: entry.Default,
	}
}

func normalizeSymbols(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeIntervals(intervals []string) []string {
	var out []string
	for _, s := range intervals {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
