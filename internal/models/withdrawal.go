package models

import (
	"time"
)

// WithdrawalRequest 提现申请
// amount 在创建时固定，且必须始终等于分配给它的佣金记录金额之和
type WithdrawalRequest struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	AffiliateID     int64      `gorm:"index;not null" json:"affiliate_id"`
	Amount          float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status          string     `gorm:"type:varchar(12);not null;default:'pending'" json:"status"`
	PaymentMethod   string     `gorm:"type:varchar(10);not null" json:"payment_method"`
	PaymentDetails  string     `gorm:"type:text" json:"-"`
	OperatorID      *int64     `json:"operator_id,omitempty"`
	RequestedAt     time.Time  `gorm:"autoCreateTime" json:"requested_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	RejectionReason *string    `gorm:"type:varchar(255)" json:"rejection_reason,omitempty"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Operator  *Admin     `gorm:"foreignKey:OperatorID" json:"operator,omitempty"`
}

// TableName 表名
func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// WithdrawalStatus 提现状态
const (
	WithdrawalStatusPending    = "pending"    // 待审核
	WithdrawalStatusApproved   = "approved"   // 已批准
	WithdrawalStatusProcessing = "processing" // 打款中
	WithdrawalStatusPaid       = "paid"       // 已打款
	WithdrawalStatusRejected   = "rejected"   // 已拒绝
)

// PaymentMethod 收款方式
const (
	PaymentMethodPix      = "pix"      // Pix 即时转账
	PaymentMethodTransfer = "transfer" // 银行转账
)

// withdrawalTransitions 合法状态流转表
var withdrawalTransitions = map[string][]string{
	WithdrawalStatusPending:    {WithdrawalStatusApproved, WithdrawalStatusRejected},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing, WithdrawalStatusRejected},
	WithdrawalStatusProcessing: {WithdrawalStatusPaid},
}

// CanTransition 判断提现状态流转是否合法
func CanTransition(from, to string) bool {
	for _, next := range withdrawalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
