package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// State 策略生命周期状态。
// DCA: Initialized → Running → {TakeProfitHit | StopLossHit} → Stopped
// Grid: Uninitialized → GridPlaced → Monitoring → StopLossTriggered → Stopped
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateInitialized       State = "initialized"
	StateRunning           State = "running"
	StateGridPlaced        State = "grid_placed"
	StateMonitoring        State = "monitoring"
	StateTakeProfitHit     State = "take_profit_hit"
	StateStopLossHit       State = "stop_loss_hit"
	StateStopLossTriggered State = "stop_loss_triggered"
	StateStopped           State = "stopped"
)

type Action string

const (
	ActionNone           Action = "none"
	ActionBuy            Action = "buy"
	ActionSell           Action = "sell"
	ActionTakeProfitExit Action = "take_profit_exit"
	ActionStopLossExit   Action = "stop_loss_exit"
	ActionGridReconcile  Action = "grid_reconcile"
)

// Outcome 单个策略一个周期的执行结果，交给上层的报告层落库。
type Outcome struct {
	Strategy string
	Pair     exchange.TradingPair
	Action   Action
	Orders   []exchange.Order
	State    State
}

// Strategy 一条交易规则绑定一个交易对。
// 运行时状态归策略实例私有，只被调度循环串行访问。
type Strategy interface {
	Name() string
	Pair() exchange.TradingPair
	State() State
	Running() bool

	// Initialize 幂等，可能会挂初始订单
	Initialize(ctx context.Context) error
	Start(ctx context.Context)
	Stop(ctx context.Context)

	// RunCycle 每个 tick 的决策逻辑，未启动时是 no-op
	RunCycle(ctx context.Context) (Outcome, error)
}

// Params 配置里 parameters 字段的原始映射，带类型化访问器。
type Params map[string]any

func (p Params) Decimal(key string) (decimal.Decimal, bool) {
	raw, exists := p[key]
	if !exists {
		return decimal.Zero, false
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func (p Params) Int(key string) (int, bool) {
	raw, exists := p[key]
	if !exists {
		return 0, false
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p Params) Bool(key string, def bool) bool {
	raw, exists := p[key]
	if !exists {
		return def
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return b
}

// Config 构造策略实例所需的全部输入。
// 共享的 exchange.Service 由 manager 显式注入，策略不自行构造。
type Config struct {
	Pair     exchange.TradingPair
	Params   Params
	Notifier notification.Notifier
}

func (c Config) notifier() notification.Notifier {
	if c.Notifier == nil {
		return notification.NopNotifier{}
	}
	return c.Notifier
}

func notifyTransition(ctx context.Context, n notification.Notifier, name string, pair exchange.TradingPair, from, to State, reason string) {
	err := n.Notify(ctx, notification.Event{
		Strategy: name,
		Symbol:   pair.ToString(),
		From:     string(from),
		To:       string(to),
		Reason:   reason,
		At:       time.Now(),
	})
	if err != nil {
		slog.Warn("failed to notify state transition", "strategy", name, "symbol", pair.ToString(), "error", err)
	}
}
