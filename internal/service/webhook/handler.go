package webhook

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KNICEX/strategy-bot/internal/entity"
	"github.com/KNICEX/strategy-bot/internal/repo"
	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 把外部告警（如 TradingView webhook）翻译成对共享适配器的即时市价单。
// 与调度循环共用同一个 exchange.Service 实例，可以在任意 tick 时刻并发触发。
type Handler struct {
	svc      exchange.Service
	reports  repo.ReportRepo
	notifier notification.Notifier
}

type Option func(h *Handler)

func WithReportRepo(reports repo.ReportRepo) Option {
	return func(h *Handler) {
		h.reports = reports
	}
}

func WithNotifier(notifier notification.Notifier) Option {
	return func(h *Handler) {
		h.notifier = notifier
	}
}

func NewHandler(svc exchange.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhook", h.HandleAlert)
}

// AlertRequest TradingView 告警消息体
type AlertRequest struct {
	Action      string  `json:"action" binding:"required"`
	Symbol      string  `json:"symbol" binding:"required"`
	QuantityUSD float64 `json:"quantity_usd" binding:"required,gt=0"`
}

type orderResponse struct {
	Id       string `json:"id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Status   string `json:"status"`
}

func (h *Handler) HandleAlert(c *gin.Context) {
	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	var side exchange.Side
	switch strings.ToLower(req.Action) {
	case "buy":
		side = exchange.SideBuy
	case "sell":
		side = exchange.SideSell
	default:
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "action must be buy or sell"})
		return
	}

	pair := exchange.SplitSymbol(req.Symbol)
	if pair.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unrecognized symbol " + req.Symbol})
		return
	}

	ctx := c.Request.Context()
	price, err := h.svc.GetPrice(ctx, pair)
	if err != nil {
		slog.Error("webhook: failed to get price", "symbol", pair.ToString(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	quantityQuote := decimal.NewFromFloat(req.QuantityUSD)
	quantity := quantityQuote.Div(price)

	order, err := h.svc.CreateOrder(ctx, exchange.CreateOrderReq{
		Pair:     pair,
		Type:     exchange.OrderTypeMarket,
		Side:     side,
		Quantity: quantity,
	})
	if err != nil {
		slog.Error("webhook: failed to create order",
			"symbol", pair.ToString(), "side", side, "quantity", quantity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	slog.Info("webhook order executed",
		"symbol", pair.ToString(), "side", side, "quantity", quantity, "price", price)
	h.journal(c, order, quantityQuote)

	c.JSON(http.StatusOK, gin.H{"status": "success", "order": orderResponse{
		Id:       order.Id,
		Symbol:   order.Pair.ToString(),
		Side:     string(order.Side),
		Type:     string(order.Type),
		Quantity: order.Quantity.String(),
		Price:    order.Price.String(),
		Status:   string(order.Status),
	}})
}

func (h *Handler) journal(c *gin.Context, order exchange.Order, quantityQuote decimal.Decimal) {
	ctx := c.Request.Context()

	if h.reports != nil {
		_, err := h.reports.CreateWebhookOrder(ctx, entity.WebhookOrder{
			Symbol:        order.Pair.ToString(),
			Side:          string(order.Side),
			OrderId:       order.Id,
			QuantityQuote: quantityQuote.String(),
			Quantity:      order.Quantity.String(),
			Price:         order.Price.String(),
		})
		if err != nil {
			slog.Error("webhook: failed to journal order", "order_id", order.Id, "error", err)
		}
	}

	if h.notifier != nil {
		err := h.notifier.Notify(ctx, notification.Event{
			Strategy: "webhook",
			Symbol:   order.Pair.ToString(),
			To:       "order_placed",
			Reason:   string(order.Side) + " " + order.Quantity.String(),
			At:       time.Now(),
		})
		if err != nil {
			slog.Warn("webhook: failed to notify", "order_id", order.Id, "error", err)
		}
	}
}
