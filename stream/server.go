package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/infrastructure/monitor"
	"market-feed-go/market"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"
)

// SnapshotReader HTTP 读接口额外需要按标的读取。
type SnapshotReader interface {
	Reader
	Read(symbol string) (market.Snapshot, bool)
}

// Server 持有推送所需的全部依赖，构造一次后注册到 http.Server。
type Server struct {
	store    SnapshotReader
	interval time.Duration
	log      *zap.Logger
	mon      *monitor.Monitor
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(store SnapshotReader, cfg config.StreamConfig, log *zap.Logger, mon *monitor.Monitor) *Server {
	interval := cfg.Interval()
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:    store,
		interval: interval,
		log:      log,
		mon:      mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// originChecker 没有 Origin 头（非浏览器客户端）或同源时放行，其余只接受白名单；"*" 放行全部。
func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[normalizeOrigin(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[normalizeOrigin(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

// Handler 返回注册了全部路由的 mux。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stream/prices", s.handleSSE)
	mux.HandleFunc("GET /api/stream/ws", s.handleWS)
	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/prices/{symbol}", s.handlePrice)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Close 结束所有进行中的推送连接，http.Server.Shutdown 之前调用。
func (s *Server) Close() {
	s.cancel()
}

// streamContext 请求结束或 Server 关闭时取消。
func (s *Server) streamContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Server) serve(ctx context.Context, conn Conn, transport string) {
	id := uuid.NewString()
	log := s.log.With(zap.String("client", id), zap.String("transport", transport))
	log.Info("stream client connected")
	s.mon.StreamConnected(transport)
	defer s.mon.StreamDisconnected(transport)

	counted := &countingConn{Conn: conn, onSend: func() { s.mon.RecordStreamMessage(transport) }}
	if err := Run(ctx, counted, s.store, s.interval); err != nil {
		log.Warn("stream ended with error", zap.Error(err))
		return
	}
	log.Info("stream client disconnected")
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.streamContext(r.Context())
	defer cancel()
	conn, err := newSSEConn(ctx, w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.serve(ctx, conn, transportSSE)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	// 升级后请求 ctx 不再反映连接状态，由读协程负责取消
	ctx, cancel := s.streamContext(context.Background())
	defer cancel()
	conn := newWSConn(ws, cancel)
	defer conn.Close()
	s.serve(ctx, conn, transportWS)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ReadAll())
}

// handlePrice 不存在的标的返回 404，而不是价格 0。
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := config.NormalizeSymbol(r.PathValue("symbol"))
	snap, ok := s.store.Read(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol", "ticker": symbol})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"symbols": len(s.store.ReadAll()),
		"version": s.store.Version(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type countingConn struct {
	Conn
	onSend func()
}

func (c *countingConn) Send(payload []byte) error {
	if err := c.Conn.Send(payload); err != nil {
		return err
	}
	c.onSend()
	return nil
}
