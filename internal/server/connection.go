package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("CONNECTION_CLOSED")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 64 * 1024
)

// Connection 一条客户端 WebSocket 连接
// session_id 每次连接都不同，client_id 跨连接稳定，
// 两者配合实现断线重连时的身份宽限
type Connection struct {
	sessionID  string
	clientID   string
	ws         *websocket.Conn
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time

	mu       sync.Mutex
	roomCode string
}

// NewConnection 包装一条已升级的 WebSocket 连接并启动写协程
func NewConnection(sessionID, clientID string, ws *websocket.Conn, logger *slog.Logger) *Connection {
	c := &Connection{
		sessionID:  sessionID,
		clientID:   clientID,
		ws:         ws,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) SessionID() string {
	return c.sessionID
}

func (c *Connection) ClientID() string {
	return c.clientID
}

// BindRoom 记录连接当前所在房间
func (c *Connection) BindRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
}

func (c *Connection) ClearRoom() {
	c.BindRoom("")
}

func (c *Connection) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// Send 异步发送一帧，连接已关闭或写缓冲满时丢弃并报错
// 推送是 fire-and-forget，慢连接靠重连后的对账补齐状态
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	case c.writeChan <- data:
		return nil
	default:
		return ErrConnectionClosed
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.writeChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Write failed", "session_id", c.sessionID, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// ReadFrame 阻塞读取下一帧
func (c *Connection) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.ws.Close()
	})
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}

func (c *Connection) setupReadLimits() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}
