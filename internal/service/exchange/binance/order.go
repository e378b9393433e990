package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/samber/lo"
)

// https://developers.binance.com/docs/binance-spot-api-docs/rest-api/trading-endpoints

// 币安错误码：撤销不存在（或已成交）的订单
const codeUnknownOrder = -2011

func (svc *Service) CreateOrder(ctx context.Context, req exchange.CreateOrderReq) (exchange.Order, error) {
	if !req.Quantity.IsPositive() {
		return exchange.Order{}, fmt.Errorf("%w: quantity must be positive, got %s", exchange.ErrInvalidOrder, req.Quantity)
	}

	create := svc.cli.NewCreateOrderService().
		Symbol(req.Pair.ToString()).
		Side(toBinanceSide(req.Side)).
		Quantity(req.Quantity.String())

	switch req.Type {
	case exchange.OrderTypeMarket:
		// 市价单忽略价格
		create = create.Type(binance.OrderTypeMarket)
	case exchange.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return exchange.Order{}, fmt.Errorf("%w: price is required for LIMIT orders", exchange.ErrInvalidOrder)
		}
		create = create.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	default:
		return exchange.Order{}, fmt.Errorf("%w: unsupported order type %s", exchange.ErrInvalidOrder, req.Type)
	}

	resp, err := create.Do(ctx)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("create order: %w", err)
	}
	return convertCreateResponse(req, resp), nil
}

func (svc *Service) GetOpenOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	list := svc.cli.NewListOpenOrdersService()
	if !pair.IsZero() {
		list = list.Symbol(pair.ToString())
	}

	orders, err := list.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	return lo.Map(orders, func(o *binance.Order, _ int) exchange.Order {
		return convertOrder(o)
	}), nil
}

func (svc *Service) GetExecutedOrders(ctx context.Context, pair exchange.TradingPair) ([]exchange.Order, error) {
	orders, err := svc.cli.NewListOrdersService().Symbol(pair.ToString()).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	converted := lo.Map(orders, func(o *binance.Order, _ int) exchange.Order {
		return convertOrder(o)
	})
	return lo.Filter(converted, func(o exchange.Order, _ int) bool {
		return o.Status.IsFilled()
	}), nil
}

func (svc *Service) CancelOrder(ctx context.Context, pair exchange.TradingPair, orderId string) (exchange.Order, error) {
	id, err := strconv.ParseInt(orderId, 10, 64)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("%w: bad order id %q", exchange.ErrOrderNotFound, orderId)
	}

	resp, err := svc.cli.NewCancelOrderService().
		Symbol(pair.ToString()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder {
			return exchange.Order{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderId)
		}
		return exchange.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	return convertCancelResponse(pair, resp), nil
}
