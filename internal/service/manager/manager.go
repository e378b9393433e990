package manager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KNICEX/strategy-bot/internal/entity"
	"github.com/KNICEX/strategy-bot/internal/repo"
	"github.com/KNICEX/strategy-bot/internal/schedule"
	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	exbinance "github.com/KNICEX/strategy-bot/internal/service/exchange/binance"
	"github.com/KNICEX/strategy-bot/internal/service/exchange/sim"
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/KNICEX/strategy-bot/internal/service/strategy"
	gobinance "github.com/adshao/go-binance/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var _ schedule.Task = (*Manager)(nil)

// Manager 负责加载策略、构造唯一的共享交易所适配器、
// 隔离各策略的故障并驱动周期执行循环。
type Manager struct {
	svc        exchange.Service
	cfg        Config
	strategies []strategy.Strategy

	notifier notification.Notifier
	reports  repo.ReportRepo
}

type Option func(m *Manager)

func WithNotifier(notifier notification.Notifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

func WithReportRepo(reports repo.ReportRepo) Option {
	return func(m *Manager) {
		m.reports = reports
	}
}

func New(svc exchange.Service, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		svc:      svc,
		cfg:      cfg,
		notifier: notification.ConsoleNotifier{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BuildAdapter 构造整个进程唯一的交易所适配器并立刻验证连接。
// 适配器只能在这里构造，其余组件一律注入共享实例。
// 连接验证失败对启动是致命的：不会构造任何策略。
func BuildAdapter(ctx context.Context, cfg Config) (exchange.Service, error) {
	var svc exchange.Service
	switch cfg.Exchange {
	case ExchangeLive:
		cli := gobinance.NewClient(cfg.Credentials.ApiKey, cfg.Credentials.ApiSecret)
		svc = exbinance.NewService(cli)
	case ExchangeSimulated:
		toDecimal := func(m map[string]float64) map[string]decimal.Decimal {
			return lo.MapValues(m, func(v float64, _ string) decimal.Decimal {
				return decimal.NewFromFloat(v)
			})
		}
		svc = sim.NewService(
			sim.WithBalances(toDecimal(cfg.SimBalances)),
			sim.WithPrices(toDecimal(cfg.SimPrices)),
		)
	default:
		return nil, fmt.Errorf("%w: unknown exchange %q", ErrConfig, cfg.Exchange)
	}

	if err := svc.VerifyConnection(ctx); err != nil {
		return nil, fmt.Errorf("verify %s exchange connection: %w", cfg.Exchange, err)
	}
	return svc, nil
}

// Exchange 返回共享适配器的句柄，webhook 网关用它下单。
func (m *Manager) Exchange() exchange.Service {
	return m.svc
}

func (m *Manager) Strategies() []strategy.Strategy {
	return m.strategies
}

// InitializeStrategies 按配置构造并初始化策略。
// 单个策略初始化失败不影响其他策略：记错误日志后把它排除出活跃集合。
func (m *Manager) InitializeStrategies(ctx context.Context) {
	for _, sc := range m.cfg.Strategies {
		if !sc.Enabled {
			slog.Info("strategy disabled, skipping", "type", sc.Type, "symbol", sc.Symbol)
			continue
		}

		st, err := strategy.New(sc.Type, m.svc, strategy.Config{
			Pair:     exchange.SplitSymbol(sc.Symbol),
			Params:   sc.Parameters,
			Notifier: m.notifier,
		})
		if err != nil {
			slog.Error("failed to construct strategy", "type", sc.Type, "symbol", sc.Symbol, "error", err)
			continue
		}
		if err := st.Initialize(ctx); err != nil {
			slog.Error("failed to initialize strategy", "type", sc.Type, "symbol", sc.Symbol, "error", err)
			continue
		}
		m.strategies = append(m.strategies, st)
	}
	slog.Info("strategies initialized", "active", len(m.strategies))
}

// RunForever 启动所有活跃策略并按固定间隔驱动执行循环，直到 ctx 取消。
func (m *Manager) RunForever(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Duration(m.cfg.IntervalSeconds) * time.Second
	}
	for _, st := range m.strategies {
		st.Start(ctx)
	}
	slog.Info("strategy manager running", "strategies", len(m.strategies), "interval", interval)

	err := schedule.RunEvery(ctx, m, interval)

	for _, st := range m.strategies {
		st.Stop(ctx)
	}
	return err
}

// Run 执行一个 tick。单个策略的失败（包括 panic）绝不影响
// 本 tick 内其他策略的执行，也不会中断调度循环。
func (m *Manager) Run(ctx context.Context) error {
	for _, st := range m.strategies {
		if !st.Running() {
			continue
		}

		outcome, err := m.runCycle(ctx, st)
		if err != nil {
			slog.Error("strategy cycle failed",
				"strategy", st.Name(), "symbol", st.Pair().ToString(), "error", err)
		}
		m.report(ctx, st, outcome, err)
	}
	return nil
}

func (m *Manager) Name() string {
	return "strategy manager tick"
}

func (m *Manager) runCycle(ctx context.Context, st strategy.Strategy) (outcome strategy.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return st.RunCycle(ctx)
}

func (m *Manager) report(ctx context.Context, st strategy.Strategy, outcome strategy.Outcome, cycleErr error) {
	if m.reports == nil {
		return
	}

	report := entity.CycleReport{
		Strategy: st.Name(),
		Symbol:   st.Pair().ToString(),
		Action:   string(outcome.Action),
		State:    string(outcome.State),
		OrderIds: strings.Join(lo.Map(outcome.Orders, func(o exchange.Order, _ int) string {
			return o.Id
		}), ","),
	}
	if cycleErr != nil {
		report.Error = cycleErr.Error()
	}
	if _, err := m.reports.CreateCycle(ctx, report); err != nil {
		slog.Error("failed to persist cycle report", "strategy", st.Name(), "error", err)
	}
}
