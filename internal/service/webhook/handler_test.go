package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/exchange/sim"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (*gin.Engine, *sim.Service) {
	gin.SetMode(gin.TestMode)

	svc := sim.NewService(
		sim.WithBalances(map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
			"BTC":  decimal.NewFromInt(1),
		}),
		sim.WithPrices(map[string]decimal.Decimal{
			"BTCUSDT": decimal.NewFromInt(50000),
		}),
	)

	router := gin.New()
	NewHandler(svc).RegisterRoutes(router)
	return router, svc
}

func postAlert(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHandleAlert_Buy 告警换算成市价单：quantity = quantity_usd / price
func TestHandleAlert_Buy(t *testing.T) {
	router, svc := newTestRouter()

	w := postAlert(router, `{"action":"buy","symbol":"BTCUSDT","quantity_usd":100}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
		Order  struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Quantity string `json:"quantity"`
			Status   string `json:"status"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "BTCUSDT", resp.Order.Symbol)
	assert.Equal(t, "BUY", resp.Order.Side)
	// 100 USD / 50000 = 0.002 BTC
	assert.Equal(t, "0.002", resp.Order.Quantity)
	assert.Equal(t, "FILLED", resp.Order.Status)

	btc, err := svc.GetBalance(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Free.Equal(decimal.NewFromFloat(1.002)), "got %s", btc.Free)
}

func TestHandleAlert_Sell(t *testing.T) {
	router, _ := newTestRouter()

	w := postAlert(router, `{"action":"sell","symbol":"BTCUSDT","quantity_usd":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"SELL"`)
}

// TestHandleAlert_BadRequests 缺字段、坏 JSON、未知 action 都是 400
func TestHandleAlert_BadRequests(t *testing.T) {
	router, _ := newTestRouter()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing action", `{"symbol":"BTCUSDT","quantity_usd":100}`},
		{"missing symbol", `{"action":"buy","quantity_usd":100}`},
		{"missing quantity", `{"action":"buy","symbol":"BTCUSDT"}`},
		{"negative quantity", `{"action":"buy","symbol":"BTCUSDT","quantity_usd":-5}`},
		{"unknown action", `{"action":"hold","symbol":"BTCUSDT","quantity_usd":100}`},
		{"bad symbol", `{"action":"buy","symbol":"NONSENSE","quantity_usd":100}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postAlert(router, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

// TestHandleAlert_AdapterErrors 适配器报错透传为 500
func TestHandleAlert_AdapterErrors(t *testing.T) {
	router, _ := newTestRouter()

	// 无行情的交易对
	w := postAlert(router, `{"action":"buy","symbol":"ETHUSDT","quantity_usd":100}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// 余额不足
	w = postAlert(router, `{"action":"buy","symbol":"BTCUSDT","quantity_usd":999999}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
