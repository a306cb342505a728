package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 5 * time.Second

// wsConn 每条消息一个文本帧；读协程负责发现对端关闭。
type wsConn struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

// newWSConn 启动读协程，对端断开时调用 cancel。
func newWSConn(conn *websocket.Conn, cancel context.CancelFunc) *wsConn {
	c := &wsConn{conn: conn}
	conn.SetReadLimit(512)
	go func() {
		defer cancel()
		for {
			// 客户端不需要发任何消息，读到的内容直接丢弃
			if _, _, err := conn.ReadMessage(); err != nil {
				c.closed.Store(true)
				return
			}
		}
	}()
	return c
}

func (c *wsConn) Alive() bool { return !c.closed.Load() }

func (c *wsConn) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	return c.conn.Close()
}
