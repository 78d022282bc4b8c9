package models

import (
	"time"
)

// Click 推广链接点击记录
// 每次点击追加一条记录，绑定转化后不再参与归因；
// 记录永不删除，作为归因审计轨迹保留
type Click struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID int64     `gorm:"index;not null" json:"affiliate_id"`
	UserID      *int64    `gorm:"index" json:"user_id,omitempty"`
	Converted   bool      `gorm:"not null;default:false" json:"converted"`
	Source      string    `gorm:"type:varchar(50)" json:"source,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
}

// TableName 表名
func (Click) TableName() string {
	return "clicks"
}

// Conversion 转化记录（点击与注册用户的绑定）
// user_id 唯一：一个用户只有一次首次归因，后续其它推广员的点击不再产生新转化
// click_id 唯一：一次点击至多绑定一个用户
type Conversion struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID int64     `gorm:"index;not null" json:"affiliate_id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	ClickID     int64     `gorm:"uniqueIndex;not null" json:"click_id"`
	Type        string    `gorm:"type:varchar(30);not null" json:"type"`
	ReferenceID string    `gorm:"type:varchar(64)" json:"reference_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Click     *Click     `gorm:"foreignKey:ClickID" json:"click,omitempty"`
}

// TableName 表名
func (Conversion) TableName() string {
	return "conversions"
}

// ConversionType 转化类型
const (
	ConversionTypeSignup             = "signup"              // 注册
	ConversionTypeAuthorRegistration = "author_registration" // 作者注册
	ConversionTypeSubscription       = "subscription"        // 订阅
)

// ReferralStatus 推荐状态（读取时根据佣金记录派生，不落库）
const (
	ReferralStatusPending   = "pending"   // 窗口期内尚无合格事件
	ReferralStatusWaiting   = "waiting"   // 已有合格事件，佣金待确认
	ReferralStatusConfirmed = "confirmed" // 佣金已确认
	ReferralStatusExpired   = "expired"   // 窗口期结束仍无合格事件
)
