package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Direction 价格相对上一次的变动方向。
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// PriceDecimals 展示精度（小数位数）。
const PriceDecimals = 2

// changeDecimals 是 change / change_percent 的精度。
const changeDecimals = 4

// Snapshot 某个标的在某一时刻的不可变价格快照。
// 涨跌值/涨跌幅/方向均由 Price 与 PreviousPrice 推导，不单独存储。
type Snapshot struct {
	Symbol        string
	Price         float64
	PreviousPrice float64
	Timestamp     float64 // unix 秒
}

// NewSnapshot 按展示精度取整后构造快照。
func NewSnapshot(symbol string, price, previous, ts float64) Snapshot {
	return Snapshot{
		Symbol:        symbol,
		Price:         RoundPrice(price),
		PreviousPrice: RoundPrice(previous),
		Timestamp:     ts,
	}
}

// Change 绝对涨跌值。
func (s Snapshot) Change() float64 {
	return round(decimal.NewFromFloat(s.Price).Sub(decimal.NewFromFloat(s.PreviousPrice)), changeDecimals)
}

// ChangePercent 百分比涨跌幅；上一价为 0 时返回 0。
func (s Snapshot) ChangePercent() float64 {
	if s.PreviousPrice == 0 {
		return 0
	}
	prev := decimal.NewFromFloat(s.PreviousPrice)
	pct := decimal.NewFromFloat(s.Price).Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
	return round(pct, changeDecimals)
}

// Direction 仅由 Price 与 PreviousPrice 比较得出。
func (s Snapshot) Direction() Direction {
	switch {
	case s.Price > s.PreviousPrice:
		return DirectionUp
	case s.Price < s.PreviousPrice:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

type snapshotJSON struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousPrice float64   `json:"previous_price"`
	Timestamp     float64   `json:"timestamp"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Direction     Direction `json:"direction"`
}

// MarshalJSON 输出推送给客户端的线上格式。
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Ticker:        s.Symbol,
		Price:         s.Price,
		PreviousPrice: s.PreviousPrice,
		Timestamp:     s.Timestamp,
		Change:        s.Change(),
		ChangePercent: s.ChangePercent(),
		Direction:     s.Direction(),
	})
}

// UnmarshalJSON 读取线上格式；推导字段被忽略。
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Snapshot{
		Symbol:        raw.Ticker,
		Price:         raw.Price,
		PreviousPrice: raw.PreviousPrice,
		Timestamp:     raw.Timestamp,
	}
	return nil
}

// RoundPrice 取整到 PriceDecimals 位。
func RoundPrice(v float64) float64 {
	return round(decimal.NewFromFloat(v), PriceDecimals)
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}
