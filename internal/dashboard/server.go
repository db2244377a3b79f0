// Package dashboard hosts the monitoring and browsing surface for the
// arbitrage engine: a Gin JSON API over the published opportunity set, a
// websocket feed of fresh ticks, and panels for metrics, logs and host
// resources.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"arbflow/config"
	"arbflow/internal/arbitrage"
	"arbflow/internal/metrics"
	"arbflow/internal/model"
	"arbflow/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// EngineView is the read surface the dashboard needs from the engine: the
// latest published opportunity set and the cached venue quotes.
type EngineView interface {
	Snapshot() ([]model.Opportunity, model.FxRate)
	Quotes() []model.Quote
}

// Server hosts the Gin-powered dashboard for the arbitrage engine.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	engine            EngineView
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
	hub               *liveHub
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, engine EngineView, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if engine == nil {
		return nil, fmt.Errorf("dashboard requires an engine view")
	}

	cfg.Address = normalizeAddress(cfg.Address)

	refresh := time.Duration(cfg.RefreshIntervalSec) * time.Second
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	sampler := newResourceSampler(cfg.MetricsHistory, refresh, "/", log)

	return &Server{
		cfg:               cfg,
		log:               log,
		engine:            engine,
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     handlerID,
		refreshIntervalMs: int(refresh / time.Millisecond),
		resourceSampler:   sampler,
		hub:               newLiveHub(log),
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context
// is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}
	go s.hub.run(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
	if s.hub != nil {
		s.hub.shutdown()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

// PublishTick pushes a freshly computed set to live subscribers. Wire it to
// the engine's tick callback.
func (s *Server) PublishTick(opps []model.Opportunity, fx model.FxRate) {
	if s == nil {
		return
	}
	s.hub.broadcast("tick", tickPayload(opps, fx))
}

// PublishAges pushes re-stamped data ages between fetches. Wire it to the
// engine's age heartbeat callback.
func (s *Server) PublishAges(opps []model.Opportunity) {
	if s == nil {
		return
	}
	s.hub.broadcast("age", gin.H{"opportunities": opps})
}

func tickPayload(opps []model.Opportunity, fx model.FxRate) gin.H {
	positives := 0
	for _, o := range opps {
		if o.IsPositive {
			positives++
		}
	}
	payload := gin.H{
		"opportunities": opps,
		"best":          arbitrage.Best(opps),
		"best_per_case": arbitrage.BestPerCase(opps),
		"positive":      positives,
	}
	if fx.Valid() {
		payload["fx"] = fx
	}
	return payload
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// Allow running behind load balancers and accessing the dashboard from
	// public networks by trusting all proxies by default. Users can
	// override Gin's trusted proxy list via the GIN_TRUSTED_PROXIES
	// environment variable if needed.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"live_clients": s.hub.clientCount(),
		})
	})

	router.GET("/api/opportunities", s.handleOpportunities)
	router.POST("/api/simulate", s.handleSimulate)
	router.GET("/api/quotes", s.handleQuotes)

	router.GET("/ws", func(c *gin.Context) {
		s.hub.serveWS(c.Writer, c.Request)
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		metricsSnapshot := s.metricStore.snapshot()
		payload := make([]gin.H, 0, len(metricsSnapshot))
		for _, m := range metricsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		logsSnapshot := s.logStore.snapshot()
		payload := make([]gin.H, 0, len(logsSnapshot))
		for _, l := range logsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": l.Timestamp.Format(time.RFC3339Nano),
				"level":     l.Level,
				"component": l.Component,
				"message":   l.Message,
				"fields":    l.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": payload})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		snapshots := s.resourceSampler.snapshot()
		payload := make([]gin.H, 0, len(snapshots))
		for _, snap := range snapshots {
			payload = append(payload, gin.H{
				"timestamp":      snap.Timestamp.Format(time.RFC3339Nano),
				"cpu_percent":    snap.CPUPercent,
				"memory_used":    snap.MemoryUsed,
				"memory_total":   snap.MemoryTotal,
				"memory_percent": snap.MemoryPct,
				"disk_used":      snap.DiskUsed,
				"disk_total":     snap.DiskTotal,
				"disk_percent":   snap.DiskPct,
				"net_bytes_sent": snap.NetBytesSent,
				"net_bytes_recv": snap.NetBytesRecv,
				"goroutines":     snap.Goroutines,
			})
		}
		c.JSON(http.StatusOK, gin.H{"resources": payload})
	})

	return router, nil
}

// handleOpportunities serves the ranked, filtered view of the latest
// published set. The headline winners always come from the unfiltered set.
func (s *Server) handleOpportunities(c *gin.Context) {
	filter, key, dir, err := parseListing(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opps, fx := s.engine.Snapshot()
	ranked := arbitrage.Rank(opps, filter, key, dir)

	resp := gin.H{
		"opportunities": ranked,
		"total":         len(opps),
		"best":          arbitrage.Best(opps),
		"best_per_case": arbitrage.BestPerCase(opps),
	}
	if fx.Valid() {
		resp["fx"] = fx
	}
	c.JSON(http.StatusOK, resp)
}

type simulateRequest struct {
	ID      string  `json:"id" binding:"required"`
	Capital float64 `json:"capital"`
	Unit    string  `json:"unit"`
}

// handleSimulate prices a hypothetical capital deployment against one row of
// the latest published set, addressed by opportunity ID.
func (s *Server) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opps, _ := s.engine.Snapshot()
	var target *model.Opportunity
	for i := range opps {
		if opps[i].ID == req.ID {
			target = &opps[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "opportunity not found"})
		return
	}

	result, err := arbitrage.Simulate(*target, model.SimulationInput{
		Capital: req.Capital,
		Unit:    model.Unit(req.Unit),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opportunity": target,
		"result":      result,
	})
}

func (s *Server) handleQuotes(c *gin.Context) {
	now := time.Now().UTC()
	quotes := s.engine.Quotes()
	payload := make([]gin.H, 0, len(quotes))
	for _, q := range quotes {
		payload = append(payload, gin.H{
			"venue":       q.Venue,
			"coin":        q.Coin,
			"symbol":      q.Symbol,
			"unit":        q.Unit,
			"bid":         q.Bid,
			"ask":         q.Ask,
			"fetched_at":  q.FetchedAt.Format(time.RFC3339Nano),
			"age_seconds": int64(q.Age(now) / time.Second),
		})
	}
	c.JSON(http.StatusOK, gin.H{"quotes": payload})
}

// parseListing reads the filter and sort query parameters. Absent parameters
// fall back to the default filter, which hides nothing.
func parseListing(c *gin.Context) (model.FilterState, model.SortKey, model.SortDirection, error) {
	filter := model.DefaultFilter()
	query := c.Request.URL.Query()

	if raw, ok := query["coins"]; ok {
		filter.Coins = splitList(raw)
	}
	if raw, ok := query["cases"]; ok {
		cases, err := parseCases(raw)
		if err != nil {
			return filter, "", "", err
		}
		filter.Cases = cases
	}
	if v := c.Query("min_profit_percent"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, "", "", fmt.Errorf("invalid min_profit_percent %q", v)
		}
		filter.MinProfitPercent = f
	}
	if v := c.Query("only_positive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, "", "", fmt.Errorf("invalid only_positive %q", v)
		}
		filter.OnlyPositive = b
	}
	filter.Search = c.Query("search")

	key := model.SortKey(c.DefaultQuery("sort", string(model.SortByProfitPercent)))
	if !validSortKey(key) {
		return filter, "", "", fmt.Errorf("unknown sort key %q", key)
	}
	dir := model.SortDirection(c.DefaultQuery("dir", string(model.SortDescending)))
	if dir != model.SortAscending && dir != model.SortDescending {
		return filter, "", "", fmt.Errorf("unknown sort direction %q", dir)
	}
	return filter, key, dir, nil
}

// splitList flattens repeated and comma-separated parameter values. An
// explicitly empty parameter yields an empty selection.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func parseCases(values []string) ([]model.Case, error) {
	names := splitList(values)
	out := make([]model.Case, 0, len(names))
	for _, name := range names {
		c, ok := model.ParseCase(name)
		if !ok {
			return nil, fmt.Errorf("unknown case %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func validSortKey(key model.SortKey) bool {
	switch key {
	case model.SortByCoin, model.SortByCase, model.SortByBuyPrice, model.SortBySellPrice,
		model.SortByProfit, model.SortByProfitPercent, model.SortByDataAge:
		return true
	default:
		return false
	}
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
