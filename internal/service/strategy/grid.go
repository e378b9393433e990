package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/shopspring/decimal"
)

func init() {
	Register("grid", NewGridStrategy)
}

var _ Strategy = (*GridStrategy)(nil)

// GridStrategy 网格策略：在 [lower, upper] 区间等距布设 levels 条网格线，
// 当前价下方挂限价买单、上方挂限价卖单，成交后在相邻网格线补反向单。
// 网格线集合初始化后不可变；每条线上最多只有一个挂单。
type GridStrategy struct {
	svc      exchange.Service
	pair     exchange.TradingPair
	notifier notification.Notifier

	lower      decimal.Decimal
	upper      decimal.Decimal
	levels     int
	investment decimal.Decimal // 每条网格线投入的计价货币金额
	stopLoss   decimal.Decimal // 零值表示未配置

	// acquireInventory 控制初始化时是否先市价补足卖单侧所需的 base 库存。
	acquireInventory bool

	state   State
	running bool

	lines      []decimal.Decimal
	lineOrders map[int]string      // 网格线下标 -> 挂单ID
	orderLines map[string]int      // 挂单ID -> 网格线下标
	reconciled map[string]struct{} // 已对账的成交单ID，保证轮询幂等
}

func NewGridStrategy(svc exchange.Service, cfg Config) (Strategy, error) {
	if cfg.Pair.IsZero() {
		return nil, fmt.Errorf("grid: invalid trading pair %q", cfg.Pair.ToString())
	}

	lower, ok := cfg.Params.Decimal("lower_price")
	if !ok || !lower.IsPositive() {
		return nil, fmt.Errorf("grid: lower_price must be a positive number")
	}
	upper, ok := cfg.Params.Decimal("upper_price")
	if !ok || upper.LessThanOrEqual(lower) {
		return nil, fmt.Errorf("grid: upper_price must exceed lower_price")
	}
	levels, ok := cfg.Params.Int("levels")
	if !ok || levels < 2 {
		return nil, fmt.Errorf("grid: levels must be an integer >= 2")
	}
	investment, ok := cfg.Params.Decimal("investment_per_level_quote")
	if !ok || !investment.IsPositive() {
		return nil, fmt.Errorf("grid: investment_per_level_quote must be a positive number")
	}

	s := &GridStrategy{
		svc:              svc,
		pair:             cfg.Pair,
		notifier:         cfg.notifier(),
		lower:            lower,
		upper:            upper,
		levels:           levels,
		investment:       investment,
		acquireInventory: cfg.Params.Bool("acquire_inventory", true),
		state:            StateUninitialized,
		lineOrders:       make(map[int]string),
		orderLines:       make(map[string]int),
		reconciled:       make(map[string]struct{}),
	}
	if sl, ok := cfg.Params.Decimal("stop_loss"); ok {
		s.stopLoss = sl
	}
	return s, nil
}

func (s *GridStrategy) Name() string {
	return "grid"
}

func (s *GridStrategy) Pair() exchange.TradingPair {
	return s.pair
}

func (s *GridStrategy) State() State {
	return s.state
}

func (s *GridStrategy) Running() bool {
	return s.running
}

// GridLines 返回网格线集合的副本，严格递增，
// 首尾分别等于 lower_price / upper_price。
func (s *GridStrategy) GridLines() []decimal.Decimal {
	lines := make([]decimal.Decimal, len(s.lines))
	copy(lines, s.lines)
	return lines
}

// Initialize 计算网格线并布设初始订单。幂等：
// 重复调用得到同一组网格线，不会在已有挂单的网格线上重复挂单。
func (s *GridStrategy) Initialize(ctx context.Context) error {
	s.lines = s.computeGridLines()
	if s.state != StateUninitialized {
		return nil
	}

	price, err := s.svc.GetPrice(ctx, s.pair)
	if err != nil {
		return fmt.Errorf("get price: %w", err)
	}
	nearest := s.nearestLine(price)

	if s.acquireInventory {
		if err := s.ensureInventory(ctx, price, nearest); err != nil {
			return fmt.Errorf("acquire inventory: %w", err)
		}
	}

	for i, line := range s.lines {
		// 最接近现价的一条线不挂单
		if i == nearest {
			continue
		}
		if _, occupied := s.lineOrders[i]; occupied {
			continue
		}

		side := exchange.SideBuy
		if line.GreaterThan(price) {
			side = exchange.SideSell
		}
		if err := s.placeLineOrder(ctx, i, side); err != nil {
			slog.Error("failed to place grid order",
				"symbol", s.pair.ToString(), "line", line, "side", side, "error", err)
		}
	}

	s.transition(ctx, StateGridPlaced, fmt.Sprintf("%d grid orders placed", len(s.lineOrders)))
	return nil
}

func (s *GridStrategy) Start(ctx context.Context) {
	if s.running {
		return
	}
	s.running = true
	s.transition(ctx, StateMonitoring, "started")
}

func (s *GridStrategy) Stop(ctx context.Context) {
	if !s.running {
		return
	}
	s.running = false
	s.transition(ctx, StateStopped, "stopped")
}

func (s *GridStrategy) RunCycle(ctx context.Context) (Outcome, error) {
	out := Outcome{Strategy: s.Name(), Pair: s.pair, Action: ActionNone, State: s.state}
	if !s.running {
		return out, nil
	}

	price, err := s.svc.GetPrice(ctx, s.pair)
	if err != nil {
		return out, fmt.Errorf("get price: %w", err)
	}

	// 止损完全压倒本周期的网格维护
	if !s.stopLoss.IsZero() && price.LessThanOrEqual(s.stopLoss) {
		return s.exitStopLoss(ctx, price)
	}

	replaced, err := s.reconcile(ctx)
	if err != nil {
		return out, err
	}

	out.State = s.state
	if len(replaced) > 0 {
		out.Action = ActionGridReconcile
		out.Orders = replaced
	}
	return out, nil
}

// reconcile 轮询成交单，与本策略跟踪的挂单集合做差，
// 成交的买单在上方相邻线补限价卖单，成交的卖单在下方相邻线补限价买单。
func (s *GridStrategy) reconcile(ctx context.Context) ([]exchange.Order, error) {
	executed, err := s.svc.GetExecutedOrders(ctx, s.pair)
	if err != nil {
		return nil, fmt.Errorf("get executed orders: %w", err)
	}

	var replaced []exchange.Order
	for _, o := range executed {
		line, tracked := s.orderLines[o.Id]
		if !tracked || !o.Status.IsFilled() {
			continue
		}
		if _, seen := s.reconciled[o.Id]; seen {
			continue
		}
		s.reconciled[o.Id] = struct{}{}
		delete(s.orderLines, o.Id)
		delete(s.lineOrders, line)

		target := line + 1
		if o.Side == exchange.SideSell {
			target = line - 1
		}
		if target < 0 || target >= s.levels {
			continue
		}
		if _, occupied := s.lineOrders[target]; occupied {
			continue
		}

		order, err := s.placeLineOrderResult(ctx, target, o.Side.Reverse())
		if err != nil {
			slog.Error("failed to replace grid order",
				"symbol", s.pair.ToString(), "line", s.lines[target], "error", err)
			continue
		}
		replaced = append(replaced, order)
	}
	return replaced, nil
}

// exitStopLoss 撤掉该交易对的全部挂单，市价清仓全部可用 base 资产。
func (s *GridStrategy) exitStopLoss(ctx context.Context, price decimal.Decimal) (Outcome, error) {
	out := Outcome{Strategy: s.Name(), Pair: s.pair, Action: ActionNone, State: s.state}

	open, err := s.svc.GetOpenOrders(ctx, s.pair)
	if err != nil {
		return out, fmt.Errorf("get open orders: %w", err)
	}
	for _, o := range open {
		_, err := s.svc.CancelOrder(ctx, s.pair, o.Id)
		if err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			return out, fmt.Errorf("cancel order %s: %w", o.Id, err)
		}
		// 列表和撤单之间成交的订单留给下一个所有者处理
	}
	s.lineOrders = make(map[int]string)
	s.orderLines = make(map[string]int)

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
			return out, fmt.Errorf("stop loss sell: %w", err)
		}
		orders = append(orders, order)
	}

	s.transition(ctx, StateStopLossTriggered, fmt.Sprintf("price %s fell to stop loss", price))
	s.Stop(ctx)

	out.Action = ActionStopLossExit
	out.Orders = orders
	out.State = s.state
	return out, nil
}

// computeGridLines 线性插值出严格递增的网格线，
// step = (upper - lower) / (levels - 1)，末位强制取 upper 消除除法误差。
func (s *GridStrategy) computeGridLines() []decimal.Decimal {
	step := s.upper.Sub(s.lower).Div(decimal.NewFromInt(int64(s.levels - 1)))
	lines := make([]decimal.Decimal, s.levels)
	for i := range lines {
		lines[i] = s.lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	lines[s.levels-1] = s.upper
	return lines
}

func (s *GridStrategy) nearestLine(price decimal.Decimal) int {
	nearest := 0
	best := s.lines[0].Sub(price).Abs()
	for i, line := range s.lines {
		diff := line.Sub(price).Abs()
		if diff.LessThan(best) {
			best = diff
			nearest = i
		}
	}
	return nearest
}

// ensureInventory 汇总卖单侧网格线所需的 base 数量，
// 可用余额不足时先市价买入缺口，再布设卖单。
func (s *GridStrategy) ensureInventory(ctx context.Context, price decimal.Decimal, nearest int) error {
	needed := decimal.Zero
	for i, line := range s.lines {
		if i == nearest || line.LessThanOrEqual(price) {
			continue
		}
		needed = needed.Add(s.investment.Div(line))
	}
	if needed.IsZero() {
		return nil
	}

	balance, err := s.svc.GetBalance(ctx, s.pair.Base)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	shortfall := needed.Sub(balance.Free)
	if !shortfall.IsPositive() {
		return nil
	}

	slog.Info("acquiring base inventory for sell-side grid lines",
		"symbol", s.pair.ToString(), "shortfall", shortfall)
	_, err = s.svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     s.pair,
		Type:     exchange.OrderTypeMarket,
		Side:     exchange.SideBuy,
		Quantity: shortfall,
	})
	return err
}

func (s *GridStrategy) placeLineOrder(ctx context.Context, line int, side exchange.Side) error {
	_, err := s.placeLineOrderResult(ctx, line, side)
	return err
}

func (s *GridStrategy) placeLineOrderResult(ctx context.Context, line int, side exchange.Side) (exchange.Order, error) {
	price := s.lines[line]
	order, err := s.svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     s.pair,
		Type:     exchange.OrderTypeLimit,
		Side:     side,
		Quantity: s.investment.Div(price),
		Price:    price,
	})
	if err != nil {
		return exchange.Order{}, err
	}
	s.lineOrders[line] = order.Id
	s.orderLines[order.Id] = line
	return order, nil
}

func (s *GridStrategy) transition(ctx context.Context, to State, reason string) {
	from := s.state
	s.state = to
	notifyTransition(ctx, s.notifier, s.Name(), s.pair, from, to, reason)
}
