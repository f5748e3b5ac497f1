package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sudooom.musicroom/internal/protocol"
)

// echoServer 起一个最小服务端：按 handler 决定如何应答每帧
func echoServer(t *testing.T, handle func(conn *websocket.Conn, req *protocol.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			req, err := protocol.DecodeRequest(data)
			if err != nil {
				continue
			}
			handle(ws, req)
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func writeJSON(conn *websocket.Conn, v any) {
	data, _ := json.Marshal(v)
	conn.WriteMessage(websocket.TextMessage, data)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn, req *protocol.Request) {
		writeJSON(conn, protocol.Ack(req, map[string]any{"ok": true}))
	})

	c := New(DefaultOptions(url, "client-1"), nil, nil)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	resp, err := c.Request(context.Background(), protocol.TypeRoomVerify, map[string]any{"code": "123456"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("Expected success, got %+v", resp)
	}
}

func TestRequestTimesOut(t *testing.T) {
	// 服务端吞掉请求永不应答
	url := echoServer(t, func(conn *websocket.Conn, req *protocol.Request) {})

	opts := DefaultOptions(url, "client-1")
	opts.RequestTimeout = 100 * time.Millisecond
	c := New(opts, nil, nil)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	start := time.Now()
	_, err := c.Request(context.Background(), protocol.TypeSyncHeartbeat, map[string]any{"code": "123456"})
	if err != ErrRequestTimeout {
		t.Fatalf("Expected ErrRequestTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestRequestWhileDisconnected(t *testing.T) {
	c := New(DefaultOptions("ws://127.0.0.1:1/ws", "client-1"), nil, nil)
	if _, err := c.Request(context.Background(), protocol.TypeRoomVerify, nil); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestPushDispatch(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn, req *protocol.Request) {
		// 先推一条，再应答
		writeJSON(conn, &protocol.Push{Type: "sync:state", Payload: map[string]any{"code": "123456"}})
		writeJSON(conn, protocol.Ack(req, nil))
	})

	var mu sync.Mutex
	var events []string
	c := New(DefaultOptions(url, "client-1"), func(event string, payload json.RawMessage) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}, nil)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if _, err := c.Request(context.Background(), protocol.TypeRoomVerify, map[string]any{"code": "123456"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != "sync:state" {
		t.Errorf("Expected one sync:state push, got %v", events)
	}
}

func TestSyncProbe(t *testing.T) {
	url := echoServer(t, func(conn *websocket.Conn, req *protocol.Request) {
		var p protocol.TimeSyncPayload
		req.Bind(&p)
		writeJSON(conn, protocol.Ack(req, &protocol.TimeSyncReply{
			ClientSendMs:    p.ClientSendMs,
			ServerReceiveMs: 5000,
			ServerSendMs:    5001,
		}))
	})

	c := New(DefaultOptions(url, "client-1"), nil, nil)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	t1, t2, err := c.SyncProbe(context.Background(), 100)
	if err != nil {
		t.Fatalf("SyncProbe failed: %v", err)
	}
	if t1 != 5000 || t2 != 5001 {
		t.Errorf("Expected (5000, 5001), got (%d, %d)", t1, t2)
	}
}

func TestPendingFailFastOnDisconnect(t *testing.T) {
	// 服务端收到请求不应答，直接断开
	url := echoServer(t, func(conn *websocket.Conn, req *protocol.Request) {
		conn.Close()
	})

	opts := DefaultOptions(url, "client-1")
	opts.RequestTimeout = 2 * time.Second
	c := New(opts, nil, nil)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	start := time.Now()
	_, err := c.Request(context.Background(), protocol.TypeRoomVerify, map[string]any{"code": "123456"})
	if err != ErrNotConnected {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
	// 挂起请求在断开时立刻失败，不等满超时
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Pending request should fail fast, took %v", elapsed)
	}
}
