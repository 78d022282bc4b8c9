// Package settlement 提现服务单元测试
package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/crypto"
	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

func setupWithdrawTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Affiliate{},
		&models.Admin{},
		&models.Commission{},
		&models.WithdrawalRequest{},
	)
	require.NoError(t, err)

	return db
}

func newWithdrawService(db *gorm.DB) *WithdrawService {
	return NewWithdrawService(
		repository.NewWithdrawalRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewAffiliateRepository(db),
		db, nil, nil,
	)
}

func seedApprovedAffiliate(t *testing.T, db *gorm.DB, userID int64, code string) *models.Affiliate {
	affiliate := &models.Affiliate{
		UserID: userID,
		Code:   code,
		Name:   "测试推广员",
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusApproved,
	}
	require.NoError(t, db.Create(affiliate).Error)
	return affiliate
}

// seedConfirmed 造一条已确认未分配的佣金，created_at 按 seq 递增保证挑选顺序
func seedConfirmed(t *testing.T, db *gorm.DB, affiliateID int64, amount float64, seq int) *models.Commission {
	now := time.Now()
	commission := &models.Commission{
		AffiliateID: affiliateID,
		UserID:      int64(1000 + seq),
		Type:        models.ConversionTypeSubscription,
		ReferenceID: "sub_" + string(rune('a'+seq)),
		BasePrice:   amount * 4,
		Rate:        25.0,
		Amount:      amount,
		Status:      models.CommissionStatusConfirmed,
		ConfirmedAt: &now,
	}
	require.NoError(t, db.Create(commission).Error)
	require.NoError(t, db.Model(commission).
		Update("created_at", now.Add(time.Duration(seq)*time.Minute)).Error)
	return commission
}

func TestWithdrawService_RequestWithdrawal(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	c1 := seedConfirmed(t, db, affiliate.ID, 30.00, 0)
	c2 := seedConfirmed(t, db, affiliate.ID, 25.00, 1)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusPending, withdrawal.Status)
	// 佣金不可拆分：30 + 25 = 55，提现金额为分配总和
	assert.Equal(t, 55.00, withdrawal.Amount)

	// 两条佣金均被盖上提现单号
	allocations, err := svc.GetAllocations(ctx, withdrawal.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, c1.ID, allocations[0].ID)
	assert.Equal(t, c2.ID, allocations[1].ID)

	// 分配后余额归零
	available, err := svc.GetAvailableBalance(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.00, available)
}

func TestWithdrawService_RequestWithdrawalExactAmount(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 50.00, 0)
	seedConfirmed(t, db, affiliate.ID, 20.00, 1)

	// 最早一条正好覆盖申请额，后面的佣金不动
	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)
	assert.Equal(t, 50.00, withdrawal.Amount)

	available, err := svc.GetAvailableBalance(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.00, available)
}

func TestWithdrawService_RequestWithdrawalOldestFirst(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	oldest := seedConfirmed(t, db, affiliate.ID, 60.00, 0)
	seedConfirmed(t, db, affiliate.ID, 80.00, 1)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)

	// 按创建时间从早到晚挑选
	allocations, err := svc.GetAllocations(ctx, withdrawal.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, oldest.ID, allocations[0].ID)
	assert.Equal(t, 60.00, withdrawal.Amount)
}

func TestWithdrawService_RequestWithdrawalBelowMinimum(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 100.00, 0)

	// 最低提现 50.00：49.99 拒绝，50.00 接受
	_, err := svc.RequestWithdrawal(ctx, affiliate.ID, 49.99, models.PaymentMethodPix, "pix-key")
	assert.ErrorIs(t, err, apperrors.ErrBelowMinimumWithdrawal)

	_, err = svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	assert.NoError(t, err)
}

func TestWithdrawService_RequestWithdrawalInsufficientBalance(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 40.00, 0)

	// 待确认佣金不计入可提现余额
	waiting := &models.Commission{
		AffiliateID: affiliate.ID,
		UserID:      2000,
		Type:        models.ConversionTypeSubscription,
		ReferenceID: "sub_waiting",
		BasePrice:   400.00,
		Rate:        25.0,
		Amount:      100.00,
		Status:      models.CommissionStatusWaiting,
	}
	require.NoError(t, db.Create(waiting).Error)

	_, err := svc.RequestWithdrawal(ctx, affiliate.ID, 60.00, models.PaymentMethodPix, "pix-key")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
}

func TestWithdrawService_RequestWithdrawalInvalidMethod(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")

	_, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, "paypal", "x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPaymentMethod)
}

func TestWithdrawService_RequestWithdrawalNotApproved(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := &models.Affiliate{
		UserID: 1,
		Code:   "ABCD2345",
		Name:   "测试推广员",
		Level:  models.AffiliateLevelBronze,
		Status: models.AffiliateStatusSuspended,
	}
	require.NoError(t, db.Create(affiliate).Error)

	_, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	assert.ErrorIs(t, err, apperrors.ErrAffiliateNotApproved)
}

func TestWithdrawService_AdvanceStatusLifecycle(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	require.NoError(t, db.Model(affiliate).Update("total_earnings", 60.00).Error)
	seedConfirmed(t, db, affiliate.ID, 60.00, 0)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 60.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)

	operatorID := int64(9)
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusApproved, &operatorID, nil))
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusProcessing, &operatorID, nil))
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusPaid, &operatorID, nil))

	var stored models.WithdrawalRequest
	require.NoError(t, db.First(&stored, withdrawal.ID).Error)
	assert.Equal(t, models.WithdrawalStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.OperatorID)
	assert.Equal(t, operatorID, *stored.OperatorID)

	// 打款完成：待提收益迁移到已付总额
	var owner models.Affiliate
	require.NoError(t, db.First(&owner, affiliate.ID).Error)
	assert.Equal(t, 0.00, owner.TotalEarnings)
	assert.Equal(t, 60.00, owner.TotalPaid)

	// 分配保持不变，提现金额始终等于分配总和
	allocations, err := svc.GetAllocations(ctx, withdrawal.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, withdrawal.Amount, allocations[0].Amount)
}

func TestWithdrawService_AdvanceStatusIllegalTransition(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 60.00, 0)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 60.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)

	// pending 不能直接 paid
	err = svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusPaid, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)

	// paid 是终态
	operatorID := int64(9)
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusApproved, &operatorID, nil))
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusProcessing, &operatorID, nil))
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusPaid, &operatorID, nil))
	err = svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusRejected, &operatorID, nil)
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
}

func TestWithdrawService_RejectReleasesAllocation(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	require.NoError(t, db.Model(affiliate).Update("total_earnings", 60.00).Error)
	commission := seedConfirmed(t, db, affiliate.ID, 60.00, 0)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 60.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)

	available, err := svc.GetAvailableBalance(ctx, affiliate.ID)
	require.NoError(t, err)
	require.Equal(t, 0.00, available)

	reason := "收款信息有误"
	operatorID := int64(9)
	require.NoError(t, svc.AdvanceStatus(ctx, withdrawal.ID, models.WithdrawalStatusRejected, &operatorID, &reason))

	var stored models.WithdrawalRequest
	require.NoError(t, db.First(&stored, withdrawal.ID).Error)
	assert.Equal(t, models.WithdrawalStatusRejected, stored.Status)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, reason, *stored.RejectionReason)

	// 佣金回到可提现余额，收益簿记不动
	var released models.Commission
	require.NoError(t, db.First(&released, commission.ID).Error)
	assert.Nil(t, released.PaidInWithdrawalID)

	available, err = svc.GetAvailableBalance(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.00, available)

	var owner models.Affiliate
	require.NoError(t, db.First(&owner, affiliate.ID).Error)
	assert.Equal(t, 60.00, owner.TotalEarnings)
	assert.Equal(t, 0.00, owner.TotalPaid)
}

func TestWithdrawService_AllocationExclusive(t *testing.T) {
	db := setupWithdrawTestDB(t)
	svc := newWithdrawService(db)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 60.00, 0)

	first, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	require.NoError(t, err)
	require.NotNil(t, first)

	// 同一条佣金不能被第二笔提现认领
	_, err = svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix-key")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
}

func TestWithdrawService_PaymentDetailsEncrypted(t *testing.T) {
	db := setupWithdrawTestDB(t)

	aes, err := crypto.NewAES("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	svc := NewWithdrawService(
		repository.NewWithdrawalRepository(db),
		repository.NewCommissionRepository(db),
		repository.NewAffiliateRepository(db),
		db, nil, aes,
	)
	ctx := context.Background()

	affiliate := seedApprovedAffiliate(t, db, 1, "ABCD2345")
	seedConfirmed(t, db, affiliate.ID, 60.00, 0)

	withdrawal, err := svc.RequestWithdrawal(ctx, affiliate.ID, 50.00, models.PaymentMethodPix, "pix:user@bank.com")
	require.NoError(t, err)

	// 落库为密文，解密后还原
	var stored models.WithdrawalRequest
	require.NoError(t, db.First(&stored, withdrawal.ID).Error)
	assert.NotEqual(t, "pix:user@bank.com", stored.PaymentDetails)

	plain, err := svc.DecryptPaymentDetails(&stored)
	require.NoError(t, err)
	assert.Equal(t, "pix:user@bank.com", plain)
}
