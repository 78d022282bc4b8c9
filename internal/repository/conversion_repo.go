// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// ConversionRepository 转化仓储
type ConversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository 创建转化仓储
func NewConversionRepository(db *gorm.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create 创建转化记录
func (r *ConversionRepository) Create(ctx context.Context, conversion *models.Conversion) error {
	return r.db.WithContext(ctx).Create(conversion).Error
}

// GetByID 根据 ID 获取转化记录
func (r *ConversionRepository) GetByID(ctx context.Context, id int64) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).First(&conversion, id).Error
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// GetByUserID 根据用户 ID 获取转化记录
// 一个用户至多有一条首次归因
func (r *ConversionRepository) GetByUserID(ctx context.Context, userID int64) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&conversion).Error
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// GetByAffiliateAndUser 根据推广员和用户获取转化记录
func (r *ConversionRepository) GetByAffiliateAndUser(ctx context.Context, affiliateID, userID int64) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND user_id = ?", affiliateID, userID).
		First(&conversion).Error
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// ExistsByUserID 检查用户是否已被归因
func (r *ConversionRepository) ExistsByUserID(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Conversion{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// GetByAffiliateID 获取推广员的转化记录列表
func (r *ConversionRepository) GetByAffiliateID(ctx context.Context, affiliateID int64, offset, limit int) ([]*models.Conversion, int64, error) {
	var conversions []*models.Conversion
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Conversion{}).Where("affiliate_id = ?", affiliateID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&conversions).Error; err != nil {
		return nil, 0, err
	}

	return conversions, total, nil
}

// CountByAffiliateID 统计推广员的转化数
func (r *ConversionRepository) CountByAffiliateID(ctx context.Context, affiliateID int64, since *time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Conversion{}).Where("affiliate_id = ?", affiliateID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	err := query.Count(&count).Error
	return count, err
}

// ListExpiredWithoutCommission 列出超过确认窗口且从未产生佣金的转化
// 这类转化在读取时被视为已失效
func (r *ConversionRepository) ListExpiredWithoutCommission(ctx context.Context, deadline time.Time, limit int) ([]*models.Conversion, error) {
	var conversions []*models.Conversion
	err := r.db.WithContext(ctx).
		Where("created_at < ?", deadline).
		Where("NOT EXISTS (SELECT 1 FROM commissions WHERE commissions.user_id = conversions.user_id AND commissions.affiliate_id = conversions.affiliate_id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&conversions).Error
	return conversions, err
}
