package manager

import (
	"errors"
	"fmt"
	"os"

	"github.com/KNICEX/strategy-bot/internal/service/exchange"
	"github.com/KNICEX/strategy-bot/internal/service/strategy"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// 启动期的配置错误是致命的：配置不合法就不会进入适配器构造
var ErrConfig = errors.New("manager: invalid config")

const (
	ExchangeLive      = "live"
	ExchangeSimulated = "simulated"
)

type StrategyConfig struct {
	Type       string         `mapstructure:"type"`
	Symbol     string         `mapstructure:"symbol"`
	Enabled    bool           `mapstructure:"enabled"`
	Parameters map[string]any `mapstructure:"parameters"`
}

type Credentials struct {
	ApiKey    string `mapstructure:"api_key"`
	ApiSecret string `mapstructure:"api_secret"`
}

type Config struct {
	Exchange        string             `mapstructure:"exchange"` // live | simulated
	IntervalSeconds int                `mapstructure:"interval_seconds"`
	Credentials     Credentials        `mapstructure:"credentials"`
	SimBalances     map[string]float64 `mapstructure:"sim_balances"`
	SimPrices       map[string]float64 `mapstructure:"sim_prices"`
	Strategies      []StrategyConfig   `mapstructure:"strategies"`
}

// LoadConfig 读取并校验策略配置文件。
// 未知的策略 type 在加载期就报错，而不是等到构造时。
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal: %v", ErrConfig, err)
	}

	if cfg.Exchange != ExchangeLive && cfg.Exchange != ExchangeSimulated {
		return Config{}, fmt.Errorf("%w: exchange must be %q or %q, got %q",
			ErrConfig, ExchangeLive, ExchangeSimulated, cfg.Exchange)
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 60
	}

	known := strategy.RegisteredTypes()
	for i, sc := range cfg.Strategies {
		if !lo.Contains(known, sc.Type) {
			return Config{}, fmt.Errorf("%w: strategies[%d]: unknown strategy type %q (known: %v)",
				ErrConfig, i, sc.Type, known)
		}
		if exchange.SplitSymbol(sc.Symbol).IsZero() {
			return Config{}, fmt.Errorf("%w: strategies[%d]: bad symbol %q", ErrConfig, i, sc.Symbol)
		}
	}

	// 凭据允许从环境变量注入，yaml 里的值优先
	if cfg.Credentials.ApiKey == "" {
		cfg.Credentials.ApiKey = os.Getenv("BINANCE_API_KEY")
	}
	if cfg.Credentials.ApiSecret == "" {
		cfg.Credentials.ApiSecret = os.Getenv("BINANCE_API_SECRET")
	}
	return cfg, nil
}
