package sim

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// 编译时检查接口实现
var _ exchange.Service = (*Service)(nil)

// Service 模拟交易所。账本完全驻留内存，
// 市价单立即成交，限价单挂起，价格更新时扫描撮合。
// 调度循环和 webhook 网关会并发调用同一个实例，
// 账本和订单簿的变更都在 ledgerMu 下完成，单笔成交的两侧资产变动是原子的。
type Service struct {
	ledgerMu  sync.Mutex
	balances  map[string]*exchange.Balance
	orders    map[string]*exchange.Order // 所有订单
	open      map[string]*exchange.Order // 挂单
	executed  []exchange.Order
	nextOrder int64

	priceMu sync.RWMutex
	prices  map[string]decimal.Decimal // key: pair symbol

	now func() time.Time
	rnd *rand.Rand
}

type Option func(svc *Service)

func WithBalances(balances map[string]decimal.Decimal) Option {
	return func(svc *Service) {
		for asset, free := range balances {
			svc.balances[asset] = &exchange.Balance{Asset: asset, Free: free}
		}
	}
}

func WithPrices(prices map[string]decimal.Decimal) Option {
	return func(svc *Service) {
		for symbol, price := range prices {
			svc.prices[symbol] = price
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		svc.now = now
	}
}

func NewService(opts ...Option) *Service {
	svc := &Service{
		balances:  make(map[string]*exchange.Balance),
		orders:    make(map[string]*exchange.Order),
		open:      make(map[string]*exchange.Order),
		executed:  []exchange.Order{},
		nextOrder: 1,
		prices:    make(map[string]decimal.Decimal),
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *Service) VerifyConnection(ctx context.Context) error {
	return nil
}

func (svc *Service) GetPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	svc.priceMu.RLock()
	defer svc.priceMu.RUnlock()

	price, exists := svc.prices[pair.ToString()]
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", exchange.ErrMarketData, pair.ToString())
	}
	return price, nil
}

// GetKlines 从当前价格合成平盘K线，满足市场数据协作方的读取契约。
func (svc *Service) GetKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	price, err := svc.GetPrice(ctx, req.Pair)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 1
	}
	now := svc.now()
	klines := make([]exchange.Kline, limit)
	for i := range klines {
		openTime := now.Add(-time.Duration(limit-i) * time.Minute)
		klines[i] = exchange.Kline{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Minute),
			Open:      price,
			Close:     price,
			High:      price,
			Low:       price,
		}
	}
	return klines, nil
}

func (svc *Service) GetBalance(ctx context.Context, asset string) (exchange.Balance, error) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	if b, exists := svc.balances[asset]; exists {
		return *b, nil
	}
	// 从未持有的资产返回零余额，而不是错误
	return exchange.Balance{Asset: asset}, nil
}

func (svc *Service) CreateOrder(ctx context.Context, req exchange.CreateOrderReq) (exchange.Order, error) {
	if req.Pair.IsZero() {
		return exchange.Order{}, fmt.Errorf("%w: missing trading pair", exchange.ErrInvalidOrder)
	}
	if !req.Quantity.IsPositive() {
		return exchange.Order{}, fmt.Errorf("%w: quantity must be positive, got %s", exchange.ErrInvalidOrder, req.Quantity)
	}

	switch req.Type {
	case exchange.OrderTypeMarket:
		return svc.createMarketOrder(ctx, req)
	case exchange.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return exchange.Order{}, fmt.Errorf("%w: price is required for LIMIT orders", exchange.ErrInvalidOrder)
		}
		return svc.createLimitOrder(req)
	default:
		return exchange.Order{}, fmt.Errorf("%w: unsupported order type %s", exchange.ErrInvalidOrder, req.Type)
	}
}

// createMarketOrder 以当前市价立即成交，账本两侧在同一临界区内更新。
func (svc *Service) createMarketOrder(ctx context.Context, req exchange.CreateOrderReq) (exchange.Order, error) {
	price, err := svc.GetPrice(ctx, req.Pair)
	if err != nil {
		return exchange.Order{}, err
	}

	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	cost := req.Quantity.Mul(price)
	base := svc.balance(req.Pair.Base)
	quote := svc.balance(req.Pair.Quote)

	if req.Side == exchange.SideBuy {
		if quote.Free.LessThan(cost) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s",
				exchange.ErrInsufficientFunds, cost, req.Pair.Quote, quote.Free)
		}
		quote.Free = quote.Free.Sub(cost)
		base.Free = base.Free.Add(req.Quantity)
	} else {
		if base.Free.LessThan(req.Quantity) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s",
				exchange.ErrInsufficientFunds, req.Quantity, req.Pair.Base, base.Free)
		}
		base.Free = base.Free.Sub(req.Quantity)
		quote.Free = quote.Free.Add(cost)
	}

	order := &exchange.Order{
		Id:        svc.generateOrderId(),
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      exchange.OrderTypeMarket,
		Quantity:  req.Quantity,
		Price:     price,
		Status:    exchange.OrderStatusFilled,
		CreatedAt: svc.now(),
	}
	svc.orders[order.Id] = order
	svc.executed = append(svc.executed, *order)
	return *order, nil
}

// createLimitOrder 挂单并冻结对应资产（quote 买入成本 / base 卖出数量）。
func (svc *Service) createLimitOrder(req exchange.CreateOrderReq) (exchange.Order, error) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	if req.Side == exchange.SideBuy {
		cost := req.Quantity.Mul(req.Price)
		quote := svc.balance(req.Pair.Quote)
		if quote.Free.LessThan(cost) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s",
				exchange.ErrInsufficientFunds, cost, req.Pair.Quote, quote.Free)
		}
		quote.Free = quote.Free.Sub(cost)
		quote.Locked = quote.Locked.Add(cost)
	} else {
		base := svc.balance(req.Pair.Base)
		if base.Free.LessThan(req.Quantity) {
			return exchange.Order{}, fmt.Errorf("%w: need %s %s, have %s",
				exchange.ErrInsufficientFunds, req.Quantity, req.Pair.Base, base.Free)
		}
		base.Free = base.Free.Sub(req.Quantity)
		base.Locked = base.Locked.Add(req.Quantity)
	}

	order := &exchange.Order{
		Id:        svc.generateOrderId(),
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      exchange.OrderTypeLimit,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    exchange.OrderStatusNew,
		CreatedAt: svc.now(),
	}
	svc.orders[order.Id] = order
	svc.open[order.Id] = order
	return *order, nil
}

func (svc *Service) GetOpenOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	orders := lo.MapToSlice(svc.open, func(_ string, o *exchange.Order) exchange.Order {
		return *o
	})
	if pair.IsZero() {
		return orders, nil
	}
	return lo.Filter(orders, func(o exchange.Order, _ int) bool {
		return o.Pair == pair
	}), nil
}

func (svc *Service) GetExecutedOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	return lo.Filter(svc.executed, func(o exchange.Order, _ int) bool {
		return pair.IsZero() || o.Pair == pair
	}), nil
}

func (svc *Service) CancelOrder(ctx context.Context, pair exchange.TradingPair, orderId string) (exchange.Order, error) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	order, exists := svc.open[orderId]
	if !exists || order.Pair != pair {
		// 已成交或未知订单都不可撤
		return exchange.Order{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderId)
	}

	// 释放冻结资产
	if order.Side == exchange.SideBuy {
		cost := order.Quantity.Mul(order.Price)
		quote := svc.balance(order.Pair.Quote)
		quote.Locked = quote.Locked.Sub(cost)
		quote.Free = quote.Free.Add(cost)
	} else {
		base := svc.balance(order.Pair.Base)
		base.Locked = base.Locked.Sub(order.Quantity)
		base.Free = base.Free.Add(order.Quantity)
	}

	delete(svc.open, orderId)
	order.Status = exchange.OrderStatusCanceled
	return *order, nil
}

// SetPrice 更新行情并扫描挂单：
// 买单在价格触及或跌破限价时成交，卖单在触及或突破限价时成交。
func (svc *Service) SetPrice(pair exchange.TradingPair, price decimal.Decimal) {
	svc.priceMu.Lock()
	svc.prices[pair.ToString()] = price
	svc.priceMu.Unlock()

	svc.scanOpenOrders(pair, price)
}

// Walk 模拟一次价格随机波动，幅度在 ±pct 之间。
func (svc *Service) Walk(pair exchange.TradingPair, pct float64) {
	svc.priceMu.RLock()
	price, exists := svc.prices[pair.ToString()]
	svc.priceMu.RUnlock()
	if !exists {
		return
	}

	change := decimal.NewFromFloat((svc.rnd.Float64()*2 - 1) * pct)
	svc.SetPrice(pair, price.Add(price.Mul(change)))
}

func (svc *Service) scanOpenOrders(pair exchange.TradingPair, price decimal.Decimal) {
	svc.ledgerMu.Lock()
	defer svc.ledgerMu.Unlock()

	for id, order := range svc.open {
		if order.Pair != pair {
			continue
		}
		filled := false
		if order.Side == exchange.SideBuy {
			filled = price.LessThanOrEqual(order.Price)
		} else {
			filled = price.GreaterThanOrEqual(order.Price)
		}
		if !filled {
			continue
		}

		// 限价单按限价成交，释放冻结并交割
		base := svc.balance(order.Pair.Base)
		quote := svc.balance(order.Pair.Quote)
		cost := order.Quantity.Mul(order.Price)
		if order.Side == exchange.SideBuy {
			quote.Locked = quote.Locked.Sub(cost)
			base.Free = base.Free.Add(order.Quantity)
		} else {
			base.Locked = base.Locked.Sub(order.Quantity)
			quote.Free = quote.Free.Add(cost)
		}

		delete(svc.open, id)
		order.Status = exchange.OrderStatusFilled
		svc.executed = append(svc.executed, *order)
	}
}

// balance 返回账本中的资产条目，不存在时创建零余额条目。
// 必须在持有 ledgerMu 时调用。
func (svc *Service) balance(asset string) *exchange.Balance {
	b, exists := svc.balances[asset]
	if !exists {
		b = &exchange.Balance{Asset: asset}
		svc.balances[asset] = b
	}
	return b
}

func (svc *Service) generateOrderId() string {
	id := svc.nextOrder
	svc.nextOrder++
	return strconv.FormatInt(id, 10)
}
