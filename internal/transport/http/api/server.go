package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/analysis/chanlun"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/config/writer"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/gateway/database"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/logger"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/market"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/store"
	"github.com/x-player-001/TRADING-MASTER-BACK-sub001/internal/transport/http/watchlist"
)

// Monitor 是查询接口依赖的监控面:缓存结果、即时重算与序列清单。
type Monitor interface {
	Result(symbol, interval string) (chanlun.Result, time.Time, bool)
	AnalyzeNow(ctx context.Context, symbol, interval string) (chanlun.Result, error)
	Tracked() []store.SeriesInfo
	Intervals() []string
	Stats() market.SourceStats
}

// MetricsSource 提供资金费率与持仓量等衍生品指标。
type MetricsSource interface {
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
	GetOpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]market.OpenInterestPoint, error)
}

// ChartRenderer 把分析结果渲染成图表。
type ChartRenderer interface {
	RenderHTML(symbol, interval string, res chanlun.Result) ([]byte, error)
	SnapshotPNG(ctx context.Context, html []byte) ([]byte, error)
}

// Config HTTP 服务配置。
type Config struct {
	Addr string // 监听地址,默认 :9980
	Mode string // gin 运行模式,默认 release
}

// Deps 注入查询接口的各依赖:Monitor 与 Klines 必填,
// 其余为空时对应接口返回 503。
type Deps struct {
	Monitor    Monitor
	Klines     *store.MemoryKlineStore
	Structures *database.StructureStore
	Metrics    MetricsSource
	Renderer   ChartRenderer
	Watchlists *writer.WatchlistWriter
}

// Server 提供结构分析的查询 API。
type Server struct {
	addr    string
	router  *gin.Engine
	deps    Deps
	started time.Time
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Monitor == nil {
		return nil, errors.New("monitor 不能为空")
	}
	if deps.Klines == nil {
		return nil, errors.New("kline store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		router:  router,
		deps:    deps,
		started: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api/v1")
	api.GET("/status", s.handleStatus)
	api.GET("/klines", s.handleKlines)
	api.GET("/structure", s.handleStructure)
	api.GET("/structure/centers", s.handleCenters)
	api.GET("/structure/snapshots", s.handleSnapshots)
	api.GET("/structure/snapshots/:id", s.handleSnapshot)
	api.GET("/indicators", s.handleIndicators)
	api.GET("/detectors/breakout", s.handleBreakout)
	api.GET("/detectors/levels", s.handleLevels)
	api.GET("/detectors/overlap", s.handleOverlap)
	api.GET("/detectors/divergence", s.handleDivergence)
	api.GET("/market/funding", s.handleFunding)
	api.GET("/market/openinterest", s.handleOpenInterest)
	api.GET("/chart", s.handleChart)

	if s.deps.Watchlists != nil {
		watchlist.NewRouter(s.deps.Watchlists, s.deps.Monitor.Intervals()).Register(api.Group("/watchlists"))
	}
}

// Router 暴露底层 handler,便于测试直接注入请求。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务,阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[api] 监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
