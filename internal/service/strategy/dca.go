package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/shopspring/decimal"
)

func init() {
	Register("dca", NewDCAStrategy)
}

var _ Strategy = (*DCAStrategy)(nil)

// DCAStrategy 定投策略：每隔 interval 用固定的计价货币金额市价买入。
// 止盈/止损触发时市价清仓并终止，风险退出永远先于定投检查。
type DCAStrategy struct {
	svc      exchange.Service
	pair     exchange.TradingPair
	notifier notification.Notifier

	purchaseAmount decimal.Decimal // 每次买入的计价货币金额
	interval       time.Duration
	takeProfit     decimal.Decimal // 零值表示未配置
	stopLoss       decimal.Decimal // 零值表示未配置

	state      State
	running    bool
	lastAction time.Time // 只在买入确认成功后推进
	now        func() time.Time
}

func NewDCAStrategy(svc exchange.Service, cfg Config) (Strategy, error) {
	if cfg.Pair.IsZero() {
		return nil, fmt.Errorf("dca: invalid trading pair %q", cfg.Pair.ToString())
	}

	purchaseAmount, ok := cfg.Params.Decimal("purchase_amount_quote")
	if !ok || !purchaseAmount.IsPositive() {
		return nil, fmt.Errorf("dca: purchase_amount_quote must be a positive number")
	}
	intervalSeconds, ok := cfg.Params.Int("interval_seconds")
	if !ok || intervalSeconds <= 0 {
		return nil, fmt.Errorf("dca: interval_seconds must be a positive integer")
	}

	s := &DCAStrategy{
		svc:            svc,
		pair:           cfg.Pair,
		notifier:       cfg.notifier(),
		purchaseAmount: purchaseAmount,
		interval:       time.Duration(intervalSeconds) * time.Second,
		state:          StateInitialized,
		now:            time.Now,
	}
	if tp, ok := cfg.Params.Decimal("take_profit"); ok {
		s.takeProfit = tp
	}
	if sl, ok := cfg.Params.Decimal("stop_loss"); ok {
		s.stopLoss = sl
	}
	if !s.takeProfit.IsZero() && !s.stopLoss.IsZero() && s.takeProfit.LessThanOrEqual(s.stopLoss) {
		return nil, fmt.Errorf("dca: take_profit %s must exceed stop_loss %s", s.takeProfit, s.stopLoss)
	}
	return s, nil
}

func (s *DCAStrategy) Name() string {
	return "dca"
}

func (s *DCAStrategy) Pair() exchange.TradingPair {
	return s.pair
}

func (s *DCAStrategy) State() State {
	return s.state
}

func (s *DCAStrategy) Running() bool {
	return s.running
}

func (s *DCAStrategy) Initialize(ctx context.Context) error {
	// 定投无需初始订单
	slog.Info("dca strategy initialized",
		"symbol", s.pair.ToString(),
		"purchase_amount_quote", s.purchaseAmount,
		"interval", s.interval)
	return nil
}

func (s *DCAStrategy) Start(ctx context.Context) {
	if s.running {
		return
	}
	s.running = true
	s.transition(ctx, StateRunning, "started")
}

func (s *DCAStrategy) Stop(ctx context.Context) {
	if !s.running {
		return
	}
	s.running = false
	s.transition(ctx, StateStopped, "stopped")
}

func (s *DCAStrategy) RunCycle(ctx context.Context) (Outcome, error) {
	out := Outcome{Strategy: s.Name(), Pair: s.pair, Action: ActionNone, State: s.state}
	if !s.running {
		return out, nil
	}

	price, err := s.svc.GetPrice(ctx, s.pair)
	if err != nil {
		return out, fmt.Errorf("get price: %w", err)
	}

	// 风险退出优先于定投：同一周期止盈/止损命中后绝不再买入
	if !s.takeProfit.IsZero() && price.GreaterThanOrEqual(s.takeProfit) {
		return s.exit(ctx, StateTakeProfitHit, ActionTakeProfitExit, price)
	}
	if !s.stopLoss.IsZero() && price.LessThanOrEqual(s.stopLoss) {
		return s.exit(ctx, StateStopLossHit, ActionStopLossExit, price)
	}

	if !s.lastAction.IsZero() && s.now().Sub(s.lastAction) < s.interval {
		return out, nil
	}

	quantity := s.purchaseAmount.Div(price)
	order, err := s.svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     s.pair,
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: quantity,
	})
	if err != nil {
		// lastAction 不变，下个周期重试
		return out, fmt.Errorf("dca buy: %w", err)
	}
	s.lastAction = s.now()

	out.Action = ActionBuy
	out.Orders = []exchange.Order{order}
	return out, nil
}

// exit 市价清仓全部可用 base 资产并终止策略。
// 任一调用失败时状态不变、周期中止，阈值仍然越界，下个周期会再次触发。
func (s *DCAStrategy) exit(ctx context.Context, to State, action Action, price decimal.Decimal) (Outcome, error) {
	out := Outcome{Strategy: s.Name(), Pair: s.pair, Action: ActionNone, State: s.state}

	balance, err := s.svc.GetBalance(ctx, s.pair.Base)
	if err != nil {
		return out, fmt.Errorf("get balance: %w", err)
	}

	var orders []exchange.Order
	if balance.Free.IsPositive() {
		order, err := s.svc.CreateOrder(ctx, exchange.CreateOrderReq{
			Pair:     s.pair,
			Type:     exchange.OrderTypeMarket,
			Side:     exchange.SideSell,
			Quantity: balance.Free,
		})
		if err != nil {
			return out, fmt.Errorf("exit sell: %w", err)
		}
		orders = append(orders, order)
	}

	s.transition(ctx, to, fmt.Sprintf("price %s crossed threshold", price))
	s.Stop(ctx)

	out.Action = action
	out.Orders = orders
	out.State = s.state
	return out, nil
}

func (s *DCAStrategy) transition(ctx context.Context, to State, reason string) {
	from := s.state
	s.state = to
	notifyTransition(ctx, s.notifier, s.Name(), s.pair, from, to, reason)
}
