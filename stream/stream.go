// Package stream 把价格缓存的变化推送给订阅方（SSE、WebSocket、Redis 镜像）。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-feed-go/market"
)

// DefaultInterval 两次版本检查之间的间隔。
const DefaultInterval = 500 * time.Millisecond

// Conn 一个推送目标。Alive 返回 false 后 Run 退出。
type Conn interface {
	Alive() bool
	Send(payload []byte) error
}

// EmptyAware 由需要感知“表被清空”的 Conn 实现（例如镜像要删除残留 key）。
// 版本变化且缓存为空时，Run 会对这类连接发送空表 "{}"。
type EmptyAware interface {
	WantsEmpty() bool
}

// Reader 推送流需要的缓存读取面。
type Reader interface {
	Version() uint64
	ReadAll() map[string]market.Snapshot
}

// Run 轮询缓存版本，只有版本变化且缓存非空时才发送整张价格表；
// 实现 EmptyAware 的连接在缓存变空时也会收到空表。
// 每轮都会等待 interval，与是否发送无关。ctx 结束或连接断开时返回 nil，发送失败时返回错误。
func Run(ctx context.Context, conn Conn, src Reader, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	var (
		last uint64
		seen bool // 版本号无符号，用标记代替 -1
	)
	sendEmpty := false
	if ea, ok := conn.(EmptyAware); ok {
		sendEmpty = ea.WantsEmpty()
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if !conn.Alive() {
			return nil
		}
		if v := src.Version(); !seen || v != last {
			seen, last = true, v
			if prices := src.ReadAll(); len(prices) > 0 || sendEmpty {
				payload, err := Encode(prices)
				if err != nil {
					return err
				}
				if err := conn.Send(payload); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
		}
		timer.Reset(interval)
	}
}

// Encode 一条消息：以标的为键的快照对象。
func Encode(prices map[string]market.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(prices)
	if err != nil {
		return nil, fmt.Errorf("encode prices: %w", err)
	}
	return payload, nil
}
