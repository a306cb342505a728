package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market-feed-go/infrastructure/monitor"
)

const snapshotPath = "/v2/snapshot/locale/us/markets/stocks/tickers"

var (
	ErrUnauthorized = errors.New("massive: unauthorized")
	ErrRateLimited  = errors.New("massive: rate limited")
)

// StatusError 其余非 2xx 响应。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("massive: snapshot status %d: %s", e.Code, e.Body)
}

// LastTrade 最近成交；Timestamp 为 Unix 毫秒。
type LastTrade struct {
	Price     float64
	Timestamp int64
}

// TickerSnapshot 单个标的快照；记录缺失或格式错误时 LastTrade 为 nil。
type TickerSnapshot struct {
	Ticker    string
	LastTrade *LastTrade
}

type snapshotResp struct {
	Status  string            `json:"status"`
	Tickers []json.RawMessage `json:"tickers"`
}

type tickerRecord struct {
	Ticker    string `json:"ticker"`
	LastTrade *struct {
		P *float64 `json:"p"`
		T *int64   `json:"t"`
	} `json:"lastTrade"`
}

// MassiveClient 访问 Massive(Polygon) 批量快照接口；HTTPClient 可注入 httptest。
type MassiveClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
	Monitor    *monitor.Monitor
}

// NewMassiveClient 使用默认超时与每分钟限流构造客户端。
func NewMassiveClient(baseURL, apiKey string, timeout time.Duration, perMin float64) *MassiveClient {
	hc := NewDefaultHTTPClient()
	if timeout > 0 {
		hc.Timeout = timeout
	}
	c := &MassiveClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: hc,
	}
	if perMin > 0 {
		c.Limiter = NewPerMinuteLimiter(perMin)
	}
	return c
}

// FetchSnapshots 一次请求拉取全部 tickers 的最新成交。
func (c *MassiveClient) FetchSnapshots(ctx context.Context, tickers []string) ([]TickerSnapshot, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("tickers", strings.Join(tickers, ","))
	q.Set("apiKey", c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+snapshotPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	const action = "snapshot"
	c.Monitor.RecordRESTRequest(action)
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	c.Monitor.RecordRESTLatency(action, time.Since(start).Seconds())
	if err != nil {
		c.Monitor.RecordRESTError(action)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.Monitor.RecordRESTError(action)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, ErrUnauthorized
		case http.StatusTooManyRequests:
			return nil, ErrRateLimited
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var sr snapshotResp
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		c.Monitor.RecordRESTError(action)
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out := make([]TickerSnapshot, 0, len(sr.Tickers))
	for _, raw := range sr.Tickers {
		out = append(out, parseRecord(raw))
	}
	return out, nil
}

// parseRecord 单条记录独立解析，坏记录不影响整批。
func parseRecord(raw json.RawMessage) TickerSnapshot {
	var rec tickerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		var partial struct {
			Ticker string `json:"ticker"`
		}
		_ = json.Unmarshal(raw, &partial)
		return TickerSnapshot{Ticker: partial.Ticker}
	}
	snap := TickerSnapshot{Ticker: rec.Ticker}
	if lt := rec.LastTrade; lt != nil && lt.P != nil && lt.T != nil {
		snap.LastTrade = &LastTrade{Price: *lt.P, Timestamp: *lt.T}
	}
	return snap
}

// Close 释放空闲连接。
func (c *MassiveClient) Close() error {
	if c != nil && c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
	return nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
