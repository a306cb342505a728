// Package feed 价格生产者：模拟源（GBM）与轮询源（Massive 快照），二者只通过 market.Store 对外可见。
package feed

import (
	"context"
	"errors"

	"market-feed-go/gateway"
	"market-feed-go/market"
)

var (
	ErrNotStarted     = errors.New("feed: source not started")
	ErrAlreadyStarted = errors.New("feed: source already started")
	ErrEmptySymbol    = errors.New("feed: empty symbol")
)

// Source 是所有行情源的统一接口。
type Source interface {
	// Start 以初始标的列表启动后台任务；ctx 结束时后台任务随之退出。
	Start(ctx context.Context, symbols []string) error
	// Stop 停止后台任务并等待当前周期结束；重复调用安全。
	Stop() error
	AddSymbol(ctx context.Context, symbol string) error
	RemoveSymbol(ctx context.Context, symbol string) error
	Symbols() []string
}

// PriceWriter 行情源对缓存的写入面，*market.Store 实现它。
type PriceWriter interface {
	Write(symbol string, price, ts float64) market.Snapshot
	Remove(symbol string)
}

// SnapshotFetcher 远端批量快照接口，gateway.MassiveClient 实现它。
type SnapshotFetcher interface {
	FetchSnapshots(ctx context.Context, tickers []string) ([]gateway.TickerSnapshot, error)
}

var (
	_ PriceWriter     = (*market.Store)(nil)
	_ SnapshotFetcher = (*gateway.MassiveClient)(nil)
)
