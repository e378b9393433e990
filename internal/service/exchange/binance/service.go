package binance

import (
	"context"
	"fmt"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// 编译时检查接口实现
var _ exchange.Service = (*Service)(nil)

// Service 实盘适配器，基于币安现货 API。
type Service struct {
	cli *binance.Client
}

func NewService(cli *binance.Client) *Service {
	return &Service{cli: cli}
}

// VerifyConnection ping 交易所并拉取一次账户信息，
// 两步任一失败都视为启动失败。
func (svc *Service) VerifyConnection(ctx context.Context) error {
	if err := svc.cli.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", exchange.ErrConnection, err)
	}
	if _, err := svc.cli.NewGetAccountService().Do(ctx); err != nil {
		return fmt.Errorf("%w: account: %v", exchange.ErrConnection, err)
	}
	return nil
}

func (svc *Service) GetPrice(ctx context.Context, pair exchange.TradingPair) (decimal.Decimal, error) {
	prices, err := svc.cli.NewListPricesService().Symbol(pair.ToString()).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", exchange.ErrMarketData, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no ticker for %s", exchange.ErrMarketData, pair.ToString())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad ticker price %q", exchange.ErrMarketData, prices[0].Price)
	}
	return price, nil
}

func (svc *Service) GetKlines(ctx context.Context, req exchange.GetKlinesReq) ([]exchange.Kline, error) {
	svcReq := svc.cli.NewKlinesService().
		Symbol(req.Pair.ToString()).
		Interval(req.Interval.ToString())
	if req.Limit > 0 {
		svcReq = svcReq.Limit(req.Limit)
	}

	klines, err := svcReq.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrMarketData, err)
	}
	return convertKlines(klines), nil
}

func (svc *Service) GetBalance(ctx context.Context, asset string) (exchange.Balance, error) {
	account, err := svc.cli.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, fmt.Errorf("get account: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset == asset {
			return convertBalance(b), nil
		}
	}
	// 从未持有的资产返回零余额
	return exchange.Balance{Asset: asset}, nil
}
