package sim

import (
	"context"
	"sync"
	"testing"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btcUsdt = exchange.TradingPair{Base: "BTC", Quote: "USDT"}

func newTestService() *Service {
	return NewService(
		WithBalances(map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
			"BTC":  decimal.NewFromInt(1),
		}),
		WithPrices(map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(50000),
		}),
	)
}

// TestCreateMarketOrder_Buy 市价买单立即成交，两侧资产同时变动
func TestCreateMarketOrder_Buy(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusFilled, order.Status)
	assert.True(t, order.Price.Equal(decimal.NewFromInt(50000)))

	usdt, err := svc.GetBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.True(t, usdt.Free.Equal(decimal.NewFromInt(5000)), "got %s", usdt.Free)

	btc, err := svc.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Free.Equal(decimal.NewFromFloat(1.1)), "got %s", btc.Free)
}

// TestCreateMarketOrder_InsufficientFunds 余额不足时拒单，账本不变
func TestCreateMarketOrder_InsufficientFunds(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromInt(1), // 需要 50000 USDT
	})
	require.ErrorIs(t, err, exchange.ErrInsufficientFunds)

	usdt, _ := svc.GetBalance(ctx, "USDT")
	btc, _ := svc.GetBalance(ctx, "BTC")
	assert.True(t, usdt.Free.Equal(decimal.NewFromInt(10000)))
	assert.True(t, btc.Free.Equal(decimal.NewFromInt(1)))
}

// TestCreateMarketOrder_NoPrice 无行情的交易对下市价单报市场数据错误
func TestCreateMarketOrder_NoPrice(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOrder(context.Background(), exchange.CreateOrderReq{
		Pair:     exchange.TradingPair{Base: "ETH", Quote: "USDT"},
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.1),
	})
	assert.ErrorIs(t, err, exchange.ErrMarketData)
}

// TestCreateLimitOrder_LocksFunds 限价买单冻结 quote，撤单释放
func TestCreateLimitOrder_LocksFunds(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeLimit,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.1),
		Price:    decimal.NewFromInt(48000),
	})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusNew, order.Status)

	usdt, _ := svc.GetBalance(ctx, "USDT")
	assert.True(t, usdt.Free.Equal(decimal.NewFromInt(5200)), "got %s", usdt.Free)
	assert.True(t, usdt.Locked.Equal(decimal.NewFromInt(4800)), "got %s", usdt.Locked)

	canceled, err := svc.CancelOrder(ctx, btcUsdt, order.Id)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCanceled, canceled.Status)

	usdt, _ = svc.GetBalance(ctx, "USDT")
	assert.True(t, usdt.Free.Equal(decimal.NewFromInt(10000)))
	assert.True(t, usdt.Locked.IsZero())
}

// TestCreateLimitOrder_RequiresPrice 限价单缺价格直接拒单
func TestCreateLimitOrder_RequiresPrice(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateOrder(context.Background(), exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeLimit,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.1),
	})
	assert.ErrorIs(t, err, exchange.ErrInvalidOrder)
}

// TestSetPrice_FillsLimitOrders 价格触及限价时撮合，按限价成交
func TestSetPrice_FillsLimitOrders(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	buy, err := svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeLimit,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.1),
		Price:    decimal.NewFromInt(48000),
	})
	require.NoError(t, err)

	// 未触及限价，不成交
	svc.SetPrice(btcUsdt, decimal.NewFromInt(49000))
	open, err := svc.GetOpenOrders(ctx, btcUsdt)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// 跌破限价，成交
	svc.SetPrice(btcUsdt, decimal.NewFromInt(47500))
	open, err = svc.GetOpenOrders(ctx, btcUsdt)
	require.NoError(t, err)
	assert.Empty(t, open)

	executed, err := svc.GetExecutedOrders(ctx, btcUsdt)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.Equal(t, buy.Id, executed[0].Id)
	// 以限价而非当前价成交
	assert.True(t, executed[0].Price.Equal(decimal.NewFromInt(48000)))

	btc, _ := svc.GetBalance(ctx, "BTC")
	assert.True(t, btc.Free.Equal(decimal.NewFromFloat(1.1)), "got %s", btc.Free)
	usdt, _ := svc.GetBalance(ctx, "USDT")
	assert.True(t, usdt.Locked.IsZero())
}

// TestCancelOrder_NotFound 已成交或未知订单不可撤
func TestCancelOrder_NotFound(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CancelOrder(ctx, btcUsdt, "12345")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	// 已成交的市价单同样不可撤
	order, err := svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     btcUsdt,
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, btcUsdt, order.Id)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

// TestGetBalance_UnknownAsset 从未持有的资产返回零余额而非错误
func TestGetBalance_UnknownAsset(t *testing.T) {
	svc := newTestService()

	b, err := svc.GetBalance(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.True(t, b.Free.IsZero())
	assert.True(t, b.Locked.IsZero())
}

// TestConcurrentMarketOrders 并发下单时账本保持一致
func TestConcurrentMarketOrders(t *testing.T) {
	svc := NewService(
		WithBalances(map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
		}),
		WithPrices(map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(50000),
		}),
	)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateOrder(ctx, exchange.CreateOrderReq{
				Pair:     btcUsdt,
				Type:     exchange.OrderTypeMarket,
				Side:     exchange.SideBuy,
				Quantity: decimal.NewFromFloat(0.01), // 每单 500 USDT
			})
		}()
	}
	wg.Wait()

	usdt, _ := svc.GetBalance(ctx, "USDT")
	btc, _ := svc.GetBalance(ctx, "BTC")
	// 20 单全部成交：花掉 10000 USDT 换 0.2 BTC
	assert.True(t, usdt.Free.IsZero(), "got %s", usdt.Free)
	assert.True(t, btc.Free.Equal(decimal.NewFromFloat(0.2)), "got %s", btc.Free)
}

// TestGetKlines 合成K线条数与行情价一致
func TestGetKlines(t *testing.T) {
	svc := newTestService()

	klines, err := svc.GetKlines(context.Background(), exchange.GetKlinesReq{
		Pair:     btcUsdt,
		Interval: exchange.Interval1m,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, klines, 5)
	assert.True(t, klines[0].Close.Equal(decimal.NewFromInt(50000)))
}
