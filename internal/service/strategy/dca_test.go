package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/exchange/sim"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btcUsdt = exchange.TradingPair{Base: "BTC", Quote: "USDT"}

func newDCATestExchange(price int64) *sim.Service {
	return sim.NewService(
		sim.WithBalances(map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
			"BTC":  decimal.NewFromFloat(0.5),
		}),
		sim.WithPrices(map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(price),
		}),
	)
}

func newDCA(t *testing.T, svc exchange.Service, params Params) *DCAStrategy {
	t.Helper()
	st, err := New("dca", svc, Config{Pair: btcUsdt, Params: params})
	require.NoError(t, err)
	return st.(*DCAStrategy)
}

// TestDCA_BuysFixedQuoteAmount 每周期用固定计价金额买入，数量随价格换算
func TestDCA_BuysFixedQuoteAmount(t *testing.T) {
	svc := newDCATestExchange(50000)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
	})
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx))
	s.Start(ctx)

	out, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
	require.Len(t, out.Orders, 1)
	// 50 USDT / 50000 = 0.001 BTC
	assert.True(t, out.Orders[0].Quantity.Equal(decimal.NewFromFloat(0.001)),
		"got %s", out.Orders[0].Quantity)
	assert.Equal(t, exchange.SideBuy, out.Orders[0].Side)
}

// TestDCA_RespectsInterval 间隔未到不买入，到点后恢复买入
func TestDCA_RespectsInterval(t *testing.T) {
	svc := newDCATestExchange(50000)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
	})

	current := time.Now()
	s.now = func() time.Time { return current }
	ctx := context.Background()
	s.Start(ctx)

	out, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)

	// 间隔内的周期空转
	current = current.Add(30 * time.Minute)
	out, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)

	current = current.Add(31 * time.Minute)
	out, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
}

// TestDCA_FailedBuyKeepsSchedule 买入失败时 lastAction 不推进，下个周期重试
func TestDCA_FailedBuyKeepsSchedule(t *testing.T) {
	svc := sim.NewService(
		sim.WithBalances(map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10), // 不足一次定投
		}),
		sim.WithPrices(map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(50000),
		}),
	)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
	})
	ctx := context.Background()
	s.Start(ctx)

	_, err := s.RunCycle(ctx)
	require.ErrorIs(t, err, exchange.ErrInsufficientFunds)
	assert.True(t, s.lastAction.IsZero())

	// 失败不会触发状态迁移
	assert.Equal(t, StateRunning, s.State())
	assert.True(t, s.Running())
}

// TestDCA_TakeProfitExit 止盈命中时市价清仓并终止，同周期绝不再买入
func TestDCA_TakeProfitExit(t *testing.T) {
	svc := newDCATestExchange(56000)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
		"take_profit":           55000,
		"stop_loss":             40000,
	})
	ctx := context.Background()
	s.Start(ctx)

	out, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionTakeProfitExit, out.Action)
	assert.Equal(t, StateStopped, out.State)
	assert.False(t, s.Running())

	// 全部可用持仓一单卖出
	require.Len(t, out.Orders, 1)
	assert.Equal(t, exchange.SideSell, out.Orders[0].Side)
	assert.True(t, out.Orders[0].Quantity.Equal(decimal.NewFromFloat(0.5)))

	btc, _ := svc.GetBalance(ctx, "BTC")
	assert.True(t, btc.Free.IsZero())

	// 退出周期没有发生任何买入
	executed, _ := svc.GetExecutedOrders(ctx, btcUsdt)
	require.Len(t, executed, 1)
	assert.Equal(t, exchange.SideSell, executed[0].Side)
}

// TestDCA_StopLossExit 止损命中时清仓终止
func TestDCA_StopLossExit(t *testing.T) {
	svc := newDCATestExchange(39000)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
		"take_profit":           55000,
		"stop_loss":             40000,
	})
	ctx := context.Background()
	s.Start(ctx)

	out, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionStopLossExit, out.Action)
	assert.Equal(t, StateStopped, out.State)
	assert.False(t, s.Running())
}

// TestDCA_ExitIsTerminal 终止后的周期不再产生任何动作
func TestDCA_ExitIsTerminal(t *testing.T) {
	svc := newDCATestExchange(56000)
	s := newDCA(t, svc, Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
		"take_profit":           55000,
	})
	ctx := context.Background()
	s.Start(ctx)

	_, err := s.RunCycle(ctx)
	require.NoError(t, err)

	out, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)
}

// TestNewDCAStrategy_Validation 参数校验在构造期完成
func TestNewDCAStrategy_Validation(t *testing.T) {
	svc := newDCATestExchange(50000)

	_, err := NewDCAStrategy(svc, Config{Pair: btcUsdt, Params: Params{
		"interval_seconds": 3600,
	}})
	assert.Error(t, err, "missing purchase_amount_quote")

	_, err = NewDCAStrategy(svc, Config{Pair: btcUsdt, Params: Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      0,
	}})
	assert.Error(t, err, "non-positive interval")

	// take_profit 必须高于 stop_loss
	_, err = NewDCAStrategy(svc, Config{Pair: btcUsdt, Params: Params{
		"purchase_amount_quote": 50,
		"interval_seconds":      3600,
		"take_profit":           40000,
		"stop_loss":             55000,
	}})
	assert.Error(t, err)
}
