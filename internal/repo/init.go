package repo

import (
	"github.com/KNICEX/strategy-bot/internal/entity"
	"gorm.io/gorm"
)

func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(&entity.CycleReport{}, &entity.WebhookOrder{})
}
