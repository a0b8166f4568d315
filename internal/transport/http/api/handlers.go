package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/detector"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/indicator"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
)

// maxSeriesLimit 限制单次查询返回的 K 线数量。
const maxSeriesLimit = 1500

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tracked":   s.deps.Monitor.Tracked(),
		"intervals": s.deps.Monitor.Intervals(),
		"source":    s.deps.Monitor.Stats(),
	})
}

func (s *Server) handleKlines(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 200)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(candles),
		"candles":  candles,
	})
}

func (s *Server) handleStructure(c *gin.Context) {
	symbol, interval, ok := seriesParams(c)
	if !ok {
		return
	}
	if c.Query("refresh") == "true" {
		res, err := s.deps.Monitor.AnalyzeNow(c.Request.Context(), symbol, interval)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"symbol":     symbol,
			"interval":   interval,
			"updated_at": time.Now().UnixMilli(),
			"result":     res,
		})
		return
	}
	res, ts, ok := s.deps.Monitor.Result(symbol, interval)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚无该序列的分析结果"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"interval":   interval,
		"updated_at": ts.UnixMilli(),
		"result":     res,
	})
}

func (s *Server) handleCenters(c *gin.Context) {
	if s.deps.Structures == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用结构持久化"})
		return
	}
	symbol, interval, ok := seriesParams(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 50, 500)
	if !ok {
		return
	}
	records, err := s.deps.Structures.ListCenters(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		logger.Errorf("[api] 查询中枢失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"centers": records, "count": len(records)})
}

func (s *Server) handleSnapshots(c *gin.Context) {
	if s.deps.Structures == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用结构持久化"})
		return
	}
	symbol, interval, ok := seriesParams(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 20, 200)
	if !ok {
		return
	}
	records, err := s.deps.Structures.ListSnapshots(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		logger.Errorf("[api] 查询快照失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": records, "count": len(records)})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	if s.deps.Structures == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用结构持久化"})
		return
	}
	id := c.Param("id")
	rec, err := s.deps.Structures.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		logger.Errorf("[api] 查询快照失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "快照不存在"})
		return
	}
	if c.Query("payload") == "true" {
		result, err := rec.DecodeSnapshot()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"snapshot": rec, "result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": rec})
}

func (s *Server) handleIndicators(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 300)
	if !ok {
		return
	}
	cfg := indicator.Settings{
		Symbol:      symbol,
		Interval:    interval,
		SeriesLimit: intQuery(c, "series_limit", 0),
	}
	cfg.RSI.Period = intQuery(c, "rsi", 0)
	cfg.MACD.Fast = intQuery(c, "macd_fast", 0)
	cfg.MACD.Slow = intQuery(c, "macd_slow", 0)
	cfg.MACD.Signal = intQuery(c, "macd_signal", 0)
	rep, err := indicator.ComputeAll(candles, cfg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleBreakout(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 300)
	if !ok {
		return
	}
	rep := detector.PredictBreakout(candles, detector.BreakoutOptions{})
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"forecast": rep,
	})
}

func (s *Server) handleLevels(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 300)
	if !ok {
		return
	}
	rep := detector.DetectLevels(candles, detector.LevelOptions{
		MaxLevels: intQuery(c, "max_levels", 0),
	})
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"channel":  rep.Channel,
		"levels":   rep.Levels,
	})
}

func (s *Server) handleOverlap(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 300)
	if !ok {
		return
	}
	rng, found := detector.DetectOverlap(candles, detector.OverlapOptions{
		MinBars: intQuery(c, "min_bars", 0),
		MaxBars: intQuery(c, "max_bars", 0),
	})
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"found":    found,
		"overlap":  rng,
	})
}

func (s *Server) handleDivergence(c *gin.Context) {
	candles, symbol, interval, ok := s.seriesCandles(c, 300)
	if !ok {
		return
	}
	signals := detector.DetectDivergences(candles, detector.DivergenceOptions{
		PivotSpan: intQuery(c, "pivot_span", 0),
		MaxBars:   intQuery(c, "max_bars", 0),
	})
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"interval": interval,
		"count":    len(signals),
		"signals":  signals,
	})
}

func (s *Server) handleFunding(c *gin.Context) {
	if s.deps.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "衍生品指标源未启用"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	rate, err := s.deps.Metrics.GetFundingRate(c.Request.Context(), symbol)
	if err != nil {
		logger.Warnf("[api] 资金费率查询失败: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "funding_rate": rate})
}

func (s *Server) handleOpenInterest(c *gin.Context) {
	if s.deps.Metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "衍生品指标源未启用"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	period := c.DefaultQuery("period", "5m")
	limit, ok := parseLimit(c, 48, 500)
	if !ok {
		return
	}
	points, err := s.deps.Metrics.GetOpenInterestHistory(c.Request.Context(), symbol, period, limit)
	if err != nil {
		logger.Warnf("[api] 持仓量查询失败: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"period": period,
		"points": points,
		"count":  len(points),
	})
}

func (s *Server) handleChart(c *gin.Context) {
	if s.deps.Renderer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "图表渲染未启用"})
		return
	}
	symbol, interval, ok := seriesParams(c)
	if !ok {
		return
	}
	res, _, found := s.deps.Monitor.Result(symbol, interval)
	if !found {
		var err error
		res, err = s.deps.Monitor.AnalyzeNow(c.Request.Context(), symbol, interval)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	}
	html, err := s.deps.Renderer.RenderHTML(symbol, interval, res)
	if err != nil {
		logger.Errorf("[api] 图表渲染失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.DefaultQuery("format", "html") == "png" {
		png, err := s.deps.Renderer.SnapshotPNG(c.Request.Context(), html)
		if err != nil {
			logger.Errorf("[api] 图表截图失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// seriesCandles 解析 symbol/interval/limit 并取出对应 K 线,
// 参数非法或序列为空时直接写出错误响应。
func (s *Server) seriesCandles(c *gin.Context, defLimit int) ([]market.Candle, string, string, bool) {
	symbol, interval, ok := seriesParams(c)
	if !ok {
		return nil, "", "", false
	}
	limit, ok := parseLimit(c, defLimit, maxSeriesLimit)
	if !ok {
		return nil, "", "", false
	}
	candles, err := s.deps.Klines.Export(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, "", "", false
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有该序列的K线数据"})
		return nil, "", "", false
	}
	return candles, symbol, interval, true
}

func seriesParams(c *gin.Context) (string, string, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	interval := strings.ToLower(strings.TrimSpace(c.Query("interval")))
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return "", "", false
	}
	return symbol, interval, true
}

func parseLimit(c *gin.Context, def, max int) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return 0, false
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit, true
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
