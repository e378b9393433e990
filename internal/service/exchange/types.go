package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair 交易对
type TradingPair struct {
	Base  string
	Quote string
}

func SplitSymbol(s string) TradingPair {
	s = strings.ToUpper(s)
	// 常见 Quote 列表
	quotes := []string{"USDT", "BUSD", "USDC", "BTC", "ETH"}
	for _, q := range quotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return TradingPair{Base: strings.TrimSuffix(s, q), Quote: q}
		}
	}
	// fallback
	return TradingPair{Base: s}
}

func (s TradingPair) IsZero() bool {
	return s.Base == "" || s.Quote == ""
}

func (s TradingPair) ToString() string {
	return fmt.Sprintf("%s%s", s.Base, s.Quote)
}

func (s TradingPair) ToSlashString() string {
	return fmt.Sprintf("%s/%s", s.Base, s.Quote)
}

type Interval string

func (i Interval) ToString() string {
	return string(i)
}

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Reverse() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

func (s OrderStatus) IsFilled() bool {
	return s == OrderStatusFilled
}

type Order struct {
	Id        string
	Pair      TradingPair
	Side      Side
	Type      OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal // zero for market orders
	Status    OrderStatus
	CreatedAt time.Time
}

// Balance 单个资产余额，free 可用，locked 挂单占用
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

type Kline struct {
	OpenTime         time.Time
	CloseTime        time.Time
	Open             decimal.Decimal
	Close            decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Volume           decimal.Decimal // 成交量
	QuoteAssetVolume decimal.Decimal // 成交额
}

type CreateOrderReq struct {
	Pair     TradingPair
	Type     OrderType
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal // 限价单时必填，市价单忽略
}

type GetKlinesReq struct {
	Pair     TradingPair
	Interval Interval
	Limit    int
}

// Service 交易所统一能力接口。
// 一次运行中有且仅有一个实例，由 manager 构造，
// 被所有策略和 webhook 网关共享，实现必须支持并发调用。
type Service interface {
	// VerifyConnection must succeed before any strategy starts.
	VerifyConnection(ctx context.Context) error

	GetPrice(ctx context.Context, pair TradingPair) (decimal.Decimal, error)
	GetKlines(ctx context.Context, req GetKlinesReq) ([]Kline, error)

	// GetBalance returns a zero balance, not an error, for an asset never held.
	GetBalance(ctx context.Context, asset string) (Balance, error)

	// CreateOrder is atomic from the caller's point of view: either the order
	// is accepted and returned with a status, or an error is returned and no
	// partial state is observable.
	CreateOrder(ctx context.Context, req CreateOrderReq) (Order, error)

	// GetOpenOrders lists unfilled orders, all pairs when pair is zero.
	GetOpenOrders(ctx context.Context, pair TradingPair) ([]Order, error)

	// GetExecutedOrders lists recently filled orders for a pair.
	GetExecutedOrders(ctx context.Context, pair TradingPair) ([]Order, error)

	CancelOrder(ctx context.Context, pair TradingPair, orderId string) (Order, error)
}
