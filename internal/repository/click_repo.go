// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// ClickRepository 点击仓储
type ClickRepository struct {
	db *gorm.DB
}

// NewClickRepository 创建点击仓储
func NewClickRepository(db *gorm.DB) *ClickRepository {
	return &ClickRepository{db: db}
}

// Create 创建点击记录
func (r *ClickRepository) Create(ctx context.Context, click *models.Click) error {
	return r.db.WithContext(ctx).Create(click).Error
}

// GetByID 根据 ID 获取点击记录
func (r *ClickRepository) GetByID(ctx context.Context, id int64) (*models.Click, error) {
	var click models.Click
	err := r.db.WithContext(ctx).First(&click, id).Error
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// GetLatestUnbound 获取指定推广员最近一条未绑定的点击
func (r *ClickRepository) GetLatestUnbound(ctx context.Context, affiliateID int64) (*models.Click, error) {
	var click models.Click
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND user_id IS NULL", affiliateID).
		Order("created_at DESC").
		First(&click).Error
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// Bind 将点击绑定到用户，仅当尚未绑定时生效
// 返回是否实际绑定成功，并发绑定时先写者胜出
func (r *ClickRepository) Bind(ctx context.Context, clickID, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("id = ? AND user_id IS NULL", clickID).
		Updates(map[string]interface{}{
			"user_id":   userID,
			"converted": true,
		})
	return result.RowsAffected > 0, result.Error
}

// GetByAffiliateID 获取推广员的点击记录列表
func (r *ClickRepository) GetByAffiliateID(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.Click, int64, error) {
	var clicks []*models.Click
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Click{}).Where("affiliate_id = ?", affiliateID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&clicks).Error; err != nil {
		return nil, 0, err
	}

	return clicks, total, nil
}

// CountByAffiliateID 统计推广员的点击数
func (r *ClickRepository) CountByAffiliateID(ctx context.Context, affiliateID int64, since *time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Click{}).Where("affiliate_id = ?", affiliateID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	err := query.Count(&count).Error
	return count, err
}

// CountConvertedByAffiliateID 统计推广员已转化的点击数
func (r *ClickRepository) CountConvertedByAffiliateID(ctx context.Context, affiliateID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("affiliate_id = ? AND converted = ?", affiliateID, true).
		Count(&count).Error
	return count, err
}

// CountStaleUnbound 统计保留期之外仍未绑定的点击数
// 未绑定点击不删除，仅在归因时按保留期过滤
func (r *ClickRepository) CountStaleUnbound(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("user_id IS NULL AND created_at < ?", before).
		Count(&count).Error
	return count, err
}
