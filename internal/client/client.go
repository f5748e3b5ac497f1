package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sudooom.musicroom/internal/protocol"
)

var (
	ErrNotConnected   = errors.New("NOT_CONNECTED")
	ErrRequestTimeout = errors.New("REQUEST_TIMEOUT")
	ErrRequestFailed  = errors.New("REQUEST_FAILED")
)

// PushHandler 服务端推送回调
type PushHandler func(event string, payload json.RawMessage)

// Options 客户端配置
type Options struct {
	URL            string
	ClientID       string
	RequestTimeout time.Duration // 普通请求
	JoinTimeout    time.Duration // room:create / room:join / room:rejoin
}

func DefaultOptions(url, clientID string) Options {
	return Options{
		URL:            url,
		ClientID:       clientID,
		RequestTimeout: 5 * time.Second,
		JoinTimeout:    10 * time.Second,
	}
}

// Client 到服务端的一条连接
// 请求按 req_id 关联应答，每个请求都有显式超时，挂起的请求
// 以 ErrRequestTimeout 收尾而不是无限等待
type Client struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	ws      *websocket.Conn
	pending map[string]chan *protocol.Response

	onPush     PushHandler
	reqCounter atomic.Int64
	connected  atomic.Bool
}

func New(opts Options, onPush PushHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		logger:  logger.With("component", "client"),
		pending: make(map[string]chan *protocol.Response),
		onPush:  onPush,
	}
}

// Dial 建立连接并启动读循环
func (c *Client) Dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.JoinTimeout}
	ws, _, err := dialer.DialContext(ctx, c.opts.URL+"?client_id="+c.opts.ClientID, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	c.connected.Store(true)
	go c.readLoop(ws)
	return nil
}

// IsConnected 连接是否可用
// 以读循环的存活为准，不只是「socket 对象存在」
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer func() {
		c.connected.Store(false)
		c.failPending()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.logger.Debug("Read loop ended", "error", err)
			return
		}

		var frame struct {
			Type    string          `json:"type"`
			ReqID   string          `json:"req_id"`
			Success bool            `json:"success"`
			Error   string          `json:"error"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}

		if frame.ReqID != "" {
			c.mu.Lock()
			ch, ok := c.pending[frame.ReqID]
			delete(c.pending, frame.ReqID)
			c.mu.Unlock()
			if ok {
				ch <- &protocol.Response{
					Type:    frame.Type,
					ReqID:   frame.ReqID,
					Success: frame.Success,
					Error:   frame.Error,
					Payload: frame.Payload,
				}
			}
			continue
		}

		if c.onPush != nil {
			c.onPush(frame.Type, frame.Payload)
		}
	}
}

// failPending 连接断开时让所有挂起请求立刻失败
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for reqID, ch := range c.pending {
		delete(c.pending, reqID)
		close(ch)
	}
}

func (c *Client) timeoutFor(msgType string) time.Duration {
	switch msgType {
	case protocol.TypeRoomCreate, protocol.TypeRoomJoin, protocol.TypeRoomRejoin:
		return c.opts.JoinTimeout
	}
	return c.opts.RequestTimeout
}

// Request 发送请求并等待关联应答
func (c *Client) Request(ctx context.Context, msgType string, payload any) (*protocol.Response, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	reqID := fmt.Sprintf("%s-%d", c.opts.ClientID, c.reqCounter.Add(1))
	data, err := json.Marshal(map[string]any{
		"type":    msgType,
		"req_id":  reqID,
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Response, 1)
	c.mu.Lock()
	if c.ws == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[reqID] = ch
	writeErr := c.ws.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()

	if writeErr != nil {
		c.dropPending(reqID)
		return nil, ErrNotConnected
	}

	timer := time.NewTimer(c.timeoutFor(msgType))
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	case <-timer.C:
		c.dropPending(reqID)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(reqID string) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

// SyncProbe 实现 clock.Prober：一次 NTP 风格往返探测
func (c *Client) SyncProbe(ctx context.Context, clientSendMs int64) (int64, int64, error) {
	resp, err := c.Request(ctx, protocol.TypeTimeSync, &protocol.TimeSyncPayload{ClientSendMs: clientSendMs})
	if err != nil {
		return 0, 0, err
	}
	if !resp.Success {
		return 0, 0, ErrRequestFailed
	}

	raw, err := json.Marshal(resp.Payload)
	if err != nil {
		return 0, 0, err
	}
	var reply protocol.TimeSyncReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, 0, err
	}
	return reply.ServerReceiveMs, reply.ServerSendMs, nil
}

// Close 关闭连接
func (c *Client) Close() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	c.connected.Store(false)
	if ws != nil {
		ws.Close()
	}
}
