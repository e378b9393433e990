package repo

import (
	"context"

	"github.com/KNICEX/strategy-bot/internal/entity"
	"gorm.io/gorm"
)

type ReportRepo interface {
	CreateCycle(ctx context.Context, report entity.CycleReport) (int64, error)
	CreateWebhookOrder(ctx context.Context, order entity.WebhookOrder) (int64, error)
	FindRecentCycles(ctx context.Context, limit int) ([]entity.CycleReport, error)
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) ReportRepo {
	return &reportRepo{
		db: db,
	}
}

func (r *reportRepo) CreateCycle(ctx context.Context, report entity.CycleReport) (int64, error) {
	err := r.db.WithContext(ctx).Create(&report).Error
	if err != nil {
		return 0, err
	}
	return report.Id, nil
}

func (r *reportRepo) CreateWebhookOrder(ctx context.Context, order entity.WebhookOrder) (int64, error) {
	err := r.db.WithContext(ctx).Create(&order).Error
	if err != nil {
		return 0, err
	}
	return order.Id, nil
}

func (r *reportRepo) FindRecentCycles(ctx context.Context, limit int) ([]entity.CycleReport, error) {
	var reports []entity.CycleReport
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}
