package bridge

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Bridge 把房间推送事件镜像到 NATS，供录制、统计等外部消费者订阅
// 纯旁路：发布失败只记日志，绝不影响房间操作
type Bridge struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect 连接 NATS 并创建事件桥
func Connect(url string, maxReconnects int, reconnectWait time.Duration, logger *slog.Logger) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		conn:   conn,
		logger: logger.With("component", "bridge"),
	}, nil
}

// BuildEventSubject 构造房间事件的 NATS subject
// 事件名里的 ":" 是 subject 层级分隔符的保留字符，换成 "."
func BuildEventSubject(code, event string) string {
	return "musicroom.room." + code + "." + strings.ReplaceAll(event, ":", ".")
}

// PublishEvent 镜像一条房间事件
func (b *Bridge) PublishEvent(code, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal bridge event", "event", event, "error", err)
		return
	}

	subject := BuildEventSubject(code, event)
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("Failed to publish bridge event", "subject", subject, "error", err)
	}
}

// Close 关闭 NATS 连接
func (b *Bridge) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
