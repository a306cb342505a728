package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const sseRetryMs = 1000

// sseConn 把消息写成 "data: <json>\n\n" 帧。
type sseConn struct {
	ctx context.Context
	w   http.ResponseWriter
	f   http.Flusher
}

func newSSEConn(ctx context.Context, w http.ResponseWriter) (*sseConn, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // 经 nginx 代理时关闭缓冲
	w.WriteHeader(http.StatusOK)
	// 断线后浏览器 EventSource 1s 后重连
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryMs); err != nil {
		return nil, err
	}
	f.Flush()
	return &sseConn{ctx: ctx, w: w, f: f}, nil
}

func (c *sseConn) Alive() bool { return c.ctx.Err() == nil }

func (c *sseConn) Send(payload []byte) error {
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.f.Flush()
	return nil
}
