package market

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store 线程安全的最新价缓存，是“每个标的最新价格”的唯一数据源。
// 写入方：一个 feed（模拟或轮询）；读取方：推送流、估值、成交校验等。
type Store struct {
	mu      sync.RWMutex
	prices  map[string]Snapshot
	version atomic.Uint64
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		prices: make(map[string]Snapshot),
		now:    time.Now,
	}
}

// Write 记录新价格并返回生成的快照。ts <= 0 时使用当前时间。
// 首次写入时 PreviousPrice 等于 Price（方向为 flat）。
func (s *Store) Write(symbol string, price, ts float64) Snapshot {
	if ts <= 0 {
		ts = unixSeconds(s.now())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := price
	if prev, ok := s.prices[symbol]; ok {
		previous = prev.Price
	}
	snap := NewSnapshot(symbol, price, previous, ts)
	s.prices[symbol] = snap
	s.version.Add(1)
	return snap
}

// Read 返回单个标的的最新快照；不存在时 ok 为 false。
// 调用方应把“不存在”视为价格未知，而不是 0。
func (s *Store) Read(symbol string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.prices[symbol]
	return snap, ok
}

// Price 便捷方法：只取价格。
func (s *Store) Price(symbol string) (float64, bool) {
	snap, ok := s.Read(symbol)
	if !ok {
		return 0, false
	}
	return snap.Price, true
}

// ReadAll 返回全部快照的时点拷贝。
func (s *Store) ReadAll() map[string]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Snapshot, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// Remove 删除标的；确实删除时版本号加一，推送流据此下发新的价格表。
func (s *Store) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prices[symbol]; !ok {
		return
	}
	delete(s.prices, symbol)
	s.version.Add(1)
}

// Version 单调递增的版本号，无锁读取。
func (s *Store) Version() uint64 {
	return s.version.Load()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}

func (s *Store) Has(symbol string) bool {
	_, ok := s.Read(symbol)
	return ok
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
