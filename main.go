package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/KNICEX/strategy-bot/internal/repo"
	"github.com/KNICEX/strategy-bot/internal/service/manager"
	"github.com/KNICEX/strategy-bot/internal/service/webhook"
	"github.com/KNICEX/strategy-bot/ioc"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func initViper() {

	// --config=./config/xxx.yaml
	file := pflag.String("config", "./config/config.dev.yaml", "specify config file")
	pflag.Parse()

	viper.SetConfigFile(*file)
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s \n", err))
	}

}

func main() {
	// .env 里的交易所凭据（可选）
	_ = godotenv.Load()
	initViper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := manager.LoadConfig(viper.ConfigFileUsed())
	if err != nil {
		panic(err)
	}

	svc, err := manager.BuildAdapter(ctx, cfg)
	if err != nil {
		panic(err)
	}

	db := ioc.InitDB()
	if err = repo.InitTables(db); err != nil {
		panic(err)
	}
	reports := repo.NewReportRepo(db)
	notifier := ioc.InitNotifier()

	m := manager.New(svc, cfg,
		manager.WithNotifier(notifier),
		manager.WithReportRepo(reports))
	m.InitializeStrategies(ctx)

	handler := webhook.NewHandler(svc,
		webhook.WithReportRepo(reports),
		webhook.WithNotifier(notifier))
	engine := gin.Default()
	handler.RegisterRoutes(engine)
	go func() {
		addr := viper.GetString("server.addr")
		if addr == "" {
			addr = ":8080"
		}
		if err := engine.Run(addr); err != nil {
			slog.Error("webhook server exited", "error", err)
		}
	}()

	if err = m.RunForever(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("strategy manager exited", "error", err)
	}
}
