package exchange

import "errors"

// 错误分类：startup 级别的连接错误对整个进程是致命的，
// 其余的由发起调用的策略在本周期内自行消化。
var (
	ErrConnection        = errors.New("exchange: connection failed")
	ErrMarketData        = errors.New("exchange: market data unavailable")
	ErrInvalidOrder      = errors.New("exchange: invalid order")
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")
	ErrOrderNotFound     = errors.New("exchange: order not found")
)
