package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sudooom.musicroom/internal/room"
	"sudooom.musicroom/internal/token"
	"sudooom.musicroom/internal/workerpool"
)

// Options 服务器配置
type Options struct {
	Addr            string
	BroadcastWorker int
	BroadcastQueue  int
}

func DefaultOptions() Options {
	return Options{
		Addr:            ":8080",
		BroadcastWorker: 16,
		BroadcastQueue:  1024,
	}
}

// Server WebSocket 接入层
// 每条连接一个读协程一个写协程；断开时经会话追踪器判定是否移除成员
type Server struct {
	opts      Options
	svc       *room.Service
	roomMgr   *room.Manager
	connMgr   *Manager
	handler   *Handler
	pool      *workerpool.Pool
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	wg        sync.WaitGroup
	startedAt time.Time
}

func New(opts Options, svc *room.Service, roomMgr *room.Manager, tokens *token.Service, mirror EventMirror, logger *slog.Logger) *Server {
	connMgr := NewManager()
	pool := workerpool.New(opts.BroadcastWorker, opts.BroadcastQueue, logger)

	s := &Server{
		opts:    opts,
		svc:     svc,
		roomMgr: roomMgr,
		connMgr: connMgr,
		handler: NewHandler(svc, tokens, connMgr, logger),
		pool:    pool,
		logger:  logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: 生产环境应该检查 Origin
				return true
			},
		},
		startedAt: time.Now(),
	}

	svc.SetBroadcaster(NewBroadcaster(connMgr, pool, mirror, logger))
	return s
}

// Start 启动 HTTP 服务并阻塞到出错或 Shutdown
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(ctx, w, r)
	})
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    s.opts.Addr,
		Handler: mux,
	}

	s.logger.Info("WebSocket server starting", "addr", s.opts.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// client_id 由客户端持有并跨连接复用；session_id 每条连接唯一
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	sessionID := uuid.NewString()

	conn := NewConnection(sessionID, clientID, ws, s.logger)
	s.connMgr.Add(conn)

	s.wg.Add(1)
	go s.readLoop(ctx, conn)
}

func (s *Server) readLoop(ctx context.Context, conn *Connection) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		// 会话是否仍是该客户端的当前会话由服务层判定；
		// 被更新连接取代的断开不会移除成员
		s.svc.HandleDisconnect(conn.ClientID(), conn.SessionID())
		s.connMgr.Remove(conn.SessionID())
	}()

	conn.setupReadLimits()

	s.logger.Debug("Connection established",
		"session_id", conn.SessionID(), "client_id", conn.ClientID())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := conn.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Connection closed unexpectedly",
					"session_id", conn.SessionID(), "error", err)
			}
			return
		}

		s.handler.HandleFrame(conn, data)
	}
}

type healthStatus struct {
	Status      string `json:"status"`
	UptimeSec   int64  `json:"uptime_sec"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&healthStatus{
		Status:      "ok",
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		Connections: s.connMgr.Count(),
		Rooms:       s.roomMgr.Count(),
	})
}

// ConnManager 返回连接管理器
func (s *Server) ConnManager() *Manager {
	return s.connMgr
}

// Shutdown 优雅停机：先停收新连接，再关现有连接，最后排干广播队列
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpSrv != nil {
		s.httpSrv.Shutdown(ctx)
	}
	s.connMgr.CloseAll()
	s.wg.Wait()
	s.pool.Shutdown()
}
