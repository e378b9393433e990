package binance

import (
	"strconv"
	"time"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/pkg/decimalx"
	"github.com/adshao/go-binance/v2"
)

func toBinanceSide(side exchange.Side) binance.SideType {
	if side == exchange.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func fromBinanceSide(side binance.SideType) exchange.Side {
	if side == binance.SideTypeSell {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func fromBinanceOrderType(typ binance.OrderType) exchange.OrderType {
	if typ == binance.OrderTypeLimit {
		return exchange.OrderTypeLimit
	}
	return exchange.OrderTypeMarket
}

func fromBinanceStatus(status binance.OrderStatusType) exchange.OrderStatus {
	switch status {
	case binance.OrderStatusTypeFilled:
		return exchange.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		return exchange.OrderStatusCanceled
	default:
		return exchange.OrderStatusNew
	}
}

func convertBalance(b binance.Balance) exchange.Balance {
	return exchange.Balance{
		Asset:  b.Asset,
		Free:   decimalx.MustFromString(b.Free),
		Locked: decimalx.MustFromString(b.Locked),
	}
}

func convertOrder(o *binance.Order) exchange.Order {
	return exchange.Order{
		Id:        strconv.FormatInt(o.OrderID, 10),
		Pair:      exchange.SplitSymbol(o.Symbol),
		Side:      fromBinanceSide(o.Side),
		Type:      fromBinanceOrderType(o.Type),
		Quantity:  decimalx.MustFromString(o.OrigQuantity),
		Price:     decimalx.MustFromString(o.Price),
		Status:    fromBinanceStatus(o.Status),
		CreatedAt: time.UnixMilli(o.Time),
	}
}

func convertCreateResponse(req exchange.CreateOrderReq, resp *binance.CreateOrderResponse) exchange.Order {
	return exchange.Order{
		Id:        strconv.FormatInt(resp.OrderID, 10),
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  decimalx.MustFromString(resp.OrigQuantity),
		Price:     req.Price,
		Status:    fromBinanceStatus(resp.Status),
		CreatedAt: time.UnixMilli(resp.TransactTime),
	}
}

func convertCancelResponse(pair exchange.TradingPair, resp *binance.CancelOrderResponse) exchange.Order {
	return exchange.Order{
		Id:       strconv.FormatInt(resp.OrderID, 10),
		Pair:     pair,
		Side:     fromBinanceSide(resp.Side),
		Type:     fromBinanceOrderType(resp.Type),
		Quantity: decimalx.MustFromString(resp.OrigQuantity),
		Price:    decimalx.MustFromString(resp.Price),
		Status:   exchange.OrderStatusCanceled,
	}
}

func convertKlines(klines []*binance.Kline) []exchange.Kline {
	kls := make([]exchange.Kline, len(klines))
	for i, k := range klines {
		kls[i] = exchange.Kline{
			OpenTime:         time.UnixMilli(k.OpenTime),
			CloseTime:        time.UnixMilli(k.CloseTime),
			Open:             decimalx.MustFromString(k.Open),
			Close:            decimalx.MustFromString(k.Close),
			High:             decimalx.MustFromString(k.High),
			Low:              decimalx.MustFromString(k.Low),
			Volume:           decimalx.MustFromString(k.Volume),
			QuoteAssetVolume: decimalx.MustFromString(k.QuoteAssetVolume),
		}
	}
	return kls
}
