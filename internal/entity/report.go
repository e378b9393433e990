package entity

import (
	"time"
)

// CycleReport 每个策略每个周期的执行结果记录
type CycleReport struct {
	Id        int64  `gorm:"primaryKey;autoIncrement"`
	Strategy  string `gorm:"index"`
	Symbol    string `gorm:"index"`
	Action    string `gorm:"index"`
	OrderIds  string // 逗号分隔的订单ID
	State     string
	Error     string
	CreatedAt time.Time `gorm:"index"`
}

// WebhookOrder webhook 网关接受的订单流水
type WebhookOrder struct {
	Id            int64  `gorm:"primaryKey;autoIncrement"`
	Symbol        string `gorm:"index"`
	Side          string
	OrderId       string
	QuantityQuote string
	Quantity      string
	Price         string
	CreatedAt     time.Time `gorm:"index"`
}
