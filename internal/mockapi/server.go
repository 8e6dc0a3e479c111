// Package mockapi is an in-memory development backend speaking the same
// envelope, paging and auth conventions as the production API. Routes are
// derived from a resource registry, so every registered resource is served.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goliatone/go-resource-cache/catalog"
	"github.com/goliatone/go-resource-cache/endpoint"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/query"
	"github.com/goliatone/go-resource-cache/registry"
	"github.com/goliatone/go-resource-cache/transport"
)

// ReadOnlySuffix marks bearer tokens that may only read.
const ReadOnlySuffix = "-readonly"

// Config configures the server.
type Config struct {
	Seed        int64
	Records     int
	Latency     time.Duration
	ScopeHeader string
}

// DefaultConfig seeds 35 records per collection.
func DefaultConfig() Config {
	return Config{Seed: 42, Records: 35, ScopeHeader: transport.DefaultScopeHeader}
}

// DocumentFunc renders a single-document resource for scope.
type DocumentFunc func(s *Server, scope string) any

// Server serves the registry's resources.
type Server struct {
	cfg       Config
	registry  *registry.Registry
	store     *Store
	documents map[string]DocumentFunc
	logger    *zap.Logger
	now       func() time.Time
	engine    *gin.Engine
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithDocument serves resource as a single document instead of a collection.
func WithDocument(resource string, fn DocumentFunc) Option {
	return func(s *Server) { s.documents[resource] = fn }
}

// New builds the server and its routes.
func New(reg *registry.Registry, cfg Config, opts ...Option) *Server {
	if cfg.ScopeHeader == "" {
		cfg.ScopeHeader = transport.DefaultScopeHeader
	}

	s := &Server{
		cfg:       cfg,
		registry:  reg,
		store:     NewStore(cfg.Seed, cfg.Records, nil),
		documents: map[string]DocumentFunc{catalog.Dashboard: dashboard},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store.now = s.now
	s.engine = s.routes()
	return s
}

// Store exposes the backing data.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.Use(s.recovery(), s.requestLogger(), s.latency())
	engine.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "Not Found")
	})

	for _, name := range s.registry.Names() {
		def, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		collection := routePath(def)
		item := strings.TrimRight(collection, "/") + "/:id"

		group := engine.Group("", s.authenticate)
		if _, ok := s.documents[name]; ok {
			group.GET(collection, s.document(name))
			continue
		}
		group.GET(collection, s.list(name))
		group.POST(collection, s.create(name))
		group.GET(item, s.get(name))
		group.PUT(item, s.update(name, false))
		group.PATCH(item, s.update(name, true))
		group.DELETE(item, s.remove(name))
	}
	return engine
}

// routePath turns a resource template into a gin pattern.
func routePath(def registry.Definition) string {
	route := def.Route()
	template := route.Template
	if template == "" {
		template = endpoint.ConfigTemplate
	}
	return strings.NewReplacer(
		endpoint.PlaceholderRoot, "",
		endpoint.PlaceholderNamespace, route.Namespace,
		endpoint.PlaceholderScope, ":scope",
		endpoint.PlaceholderResource, def.Name,
	).Replace(template)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message}})
}

func (s *Server) authenticate(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		abort(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if header := c.GetHeader(s.cfg.ScopeHeader); header != "" && header != c.Param("scope") {
		abort(c, http.StatusForbidden, "scope header does not match the requested scope")
		return
	}

	if strings.HasSuffix(token, ReadOnlySuffix) && c.Request.Method != http.MethodGet {
		abort(c, http.StatusForbidden, "token is read only")
		return
	}
	c.Next()
}

func (s *Server) latency() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Latency <= 0 {
			return
		}
		select {
		case <-time.After(s.cfg.Latency):
		case <-c.Request.Context().Done():
			c.Abort()
		}
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetHeader(transport.RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			s.logger.Error("HTTP Request", fields...)
		case status >= 400:
			s.logger.Warn("HTTP Request", fields...)
		default:
			s.logger.Info("HTTP Request", fields...)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Request.URL.Path))
				abort(c, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		c.Next()
	}
}

func (s *Server) list(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := query.FromValues(c.Request.URL.Query())
		if err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, s.store.List(c.Param("scope"), resource, params))
	}
}

func (s *Server) get(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := s.store.Get(c.Param("scope"), resource, c.Param("id"))
		if !ok {
			abort(c, http.StatusNotFound, "record not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rec})
	}
}

func (s *Server) create(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := bindRecord(c)
		if !ok {
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": s.store.Create(c.Param("scope"), resource, rec)})
	}
}

func (s *Server) update(resource string, merge bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := bindRecord(c)
		if !ok {
			return
		}
		out, found := s.store.Update(c.Param("scope"), resource, c.Param("id"), rec, merge)
		if !found {
			abort(c, http.StatusNotFound, "record not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

func (s *Server) remove(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.store.Delete(c.Param("scope"), resource, c.Param("id")) {
			abort(c, http.StatusNotFound, "record not found")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) document(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.documents[resource](s, c.Param("scope"))})
	}
}

func bindRecord(c *gin.Context) (Record, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, http.StatusBadRequest, "unreadable body")
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil || rec == nil {
		abort(c, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	if len(rec) == 0 {
		abort(c, http.StatusUnprocessableEntity, "payload is empty")
		return nil, false
	}
	return rec, true
}

// dashboard summarises the procurement collections of scope.
func dashboard(s *Server, scope string) any {
	summary := catalog.DashboardSummary{OrderValue: decimal.Zero, GeneratedAt: s.now().UTC()}

	for _, rec := range s.store.All(scope, catalog.PurchaseRequests) {
		switch catalog.DocumentStatus(str(rec["status"])) {
		case catalog.DocumentDraft:
			summary.OpenRequests++
		case catalog.DocumentSubmitted:
			summary.OpenRequests++
			summary.PendingApprovals++
		}
	}

	orders := make(map[string]catalog.PurchaseOrder)
	for _, rec := range s.store.All(scope, catalog.PurchaseOrders) {
		var po catalog.PurchaseOrder
		if decodeInto(rec, &po) != nil {
			continue
		}
		orders[po.ID] = po
		switch po.Status {
		case catalog.DocumentSubmitted:
			summary.PendingApprovals++
		case catalog.DocumentApproved:
			summary.OpenOrders++
			summary.OrderValue = summary.OrderValue.Add(po.Total())
		}
	}

	today := summary.GeneratedAt.Truncate(24 * time.Hour)
	for _, rec := range s.store.All(scope, catalog.GoodsReceivedNotes) {
		var grn catalog.GoodsReceivedNote
		if decodeInto(rec, &grn) != nil {
			continue
		}
		if !grn.ReceivedAt.Before(today) {
			summary.ReceivedToday++
		}
		if po, ok := orders[grn.OrderID]; ok && len(grn.Outstanding(po)) > 0 {
			summary.PartiallyReceived++
		}
	}

	for _, rec := range s.store.All(scope, catalog.PriceLists) {
		var pl catalog.PriceList
		if decodeInto(rec, &pl) == nil && pl.Active(summary.GeneratedAt) {
			summary.ActivePriceLists++
		}
	}

	summary.Adjustments = len(s.store.All(scope, catalog.InventoryAdjustments))
	return summary
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func decodeInto(rec Record, out any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
