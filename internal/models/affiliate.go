package models

import (
	"time"
)

// Affiliate 推广员模型
type Affiliate struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID               int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Code                 string     `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"`
	Name                 string     `gorm:"type:varchar(50)" json:"name"`
	Level                string     `gorm:"type:varchar(10);not null;default:'bronze'" json:"level"`
	Status               string     `gorm:"type:varchar(10);not null;default:'pending'" json:"status"`
	CustomCommissionRate *float64   `gorm:"type:decimal(5,2)" json:"custom_commission_rate,omitempty"`
	TotalEarnings        float64    `gorm:"type:decimal(12,2);not null;default:0" json:"total_earnings"`
	TotalPaid            float64    `gorm:"type:decimal(12,2);not null;default:0" json:"total_paid"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// AffiliateStatus 推广员状态
const (
	AffiliateStatusPending   = "pending"   // 待审核
	AffiliateStatusApproved  = "approved"  // 已通过
	AffiliateStatusRejected  = "rejected"  // 已拒绝
	AffiliateStatusSuspended = "suspended" // 已冻结
)

// AffiliateLevel 推广员等级
const (
	AffiliateLevelBronze = "bronze"
	AffiliateLevelSilver = "silver"
	AffiliateLevelGold   = "gold"
)

// 等级默认佣金比例（百分比）
const (
	DefaultRateBronze = 25.0
	DefaultRateSilver = 50.0
	DefaultRateGold   = 50.0
)

// LevelDefaultRate 返回等级默认佣金比例
func LevelDefaultRate(level string) float64 {
	switch level {
	case AffiliateLevelSilver:
		return DefaultRateSilver
	case AffiliateLevelGold:
		return DefaultRateGold
	default:
		return DefaultRateBronze
	}
}

// ResolvedRate 返回推广员实际生效的佣金比例
// 自定义比例优先于等级默认比例
func (a *Affiliate) ResolvedRate() float64 {
	if a.CustomCommissionRate != nil {
		return *a.CustomCommissionRate
	}
	return LevelDefaultRate(a.Level)
}

// IsApproved 是否已审核通过
func (a *Affiliate) IsApproved() bool {
	return a.Status == AffiliateStatusApproved
}
