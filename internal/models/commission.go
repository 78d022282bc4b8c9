package models

import (
	"time"
)

// Commission 佣金记录
// 状态单向流转：waiting → confirmed 或 waiting → expired，终态不可逆
type Commission struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID        int64      `gorm:"index;not null" json:"affiliate_id"`
	UserID             int64      `gorm:"index;not null" json:"user_id"`
	Type               string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_commissions_type_reference" json:"type"`
	ReferenceID        string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_commissions_type_reference" json:"reference_id"`
	BasePrice          float64    `gorm:"type:decimal(12,2);not null" json:"base_price"`
	Rate               float64    `gorm:"type:decimal(5,2);not null" json:"rate"`
	Amount             float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status             string     `gorm:"type:varchar(10);not null;default:'waiting'" json:"status"`
	PaidInWithdrawalID *int64     `gorm:"index" json:"paid_in_withdrawal_id,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

// TableName 表名
func (Commission) TableName() string {
	return "commissions"
}

// CommissionStatus 佣金状态
const (
	CommissionStatusWaiting   = "waiting"   // 待确认
	CommissionStatusConfirmed = "confirmed" // 已确认
	CommissionStatusExpired   = "expired"   // 已过期
)

// IsTerminal 是否已到终态
func (c *Commission) IsTerminal() bool {
	return c.Status == CommissionStatusConfirmed || c.Status == CommissionStatusExpired
}
