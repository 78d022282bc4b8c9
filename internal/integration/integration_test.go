//go:build integration

// Package integration 归因计佣链路集成测试（真实 Postgres / Redis）
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
	"github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
)

// TestAttributionCommissionFlow 点击 -> 绑定 -> 计佣 全链路
func TestAttributionCommissionFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	tc := NewTestContainers(ctx)

	err := tc.StartPostgres(DefaultPostgresConfig())
	require.NoError(t, err, "failed to start postgres container")

	t.Cleanup(func() {
		_ = tc.Cleanup()
	})

	db, err := tc.GetPostgresDB()
	require.NoError(t, err)

	require.NoError(t, MigrateCore(db))

	affiliateRepo := repository.NewAffiliateRepository(db)
	clickRepo := repository.NewClickRepository(db)
	conversionRepo := repository.NewConversionRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)

	commissionSvc := commission.NewCommissionService(
		affiliateRepo, conversionRepo, commissionRepo, db, nil, 90*24*time.Hour,
	)

	now := time.Now()
	affiliate := &models.Affiliate{
		UserID:     1001,
		Code:       "TESTAB34",
		Name:       "集成测试推广员",
		Level:      models.AffiliateLevelBronze,
		Status:     models.AffiliateStatusApproved,
		ApprovedAt: &now,
	}
	require.NoError(t, affiliateRepo.Create(ctx, affiliate))

	// 点击落库并绑定注册用户
	click := &models.Click{AffiliateID: affiliate.ID, Source: "landing"}
	require.NoError(t, clickRepo.Create(ctx, click))

	bound, err := clickRepo.Bind(ctx, click.ID, 2002)
	require.NoError(t, err)
	require.True(t, bound)

	conv := &models.Conversion{
		AffiliateID: affiliate.ID,
		UserID:      2002,
		ClickID:     click.ID,
		Type:        models.ConversionTypeSignup,
	}
	require.NoError(t, conversionRepo.Create(ctx, conv))

	t.Run("计佣", func(t *testing.T) {
		c, err := commissionSvc.ComputeCommission(ctx, affiliate.ID, 2002, "subscription", "sub-it-1", 19.99)
		require.NoError(t, err)
		assert.Equal(t, models.CommissionStatusWaiting, c.Status)
		assert.InDelta(t, 25.0, c.Rate, 1e-9)
		assert.InDelta(t, 5.00, c.Amount, 1e-9)
	})

	t.Run("重复事件幂等", func(t *testing.T) {
		first, err := commissionSvc.ComputeCommission(ctx, affiliate.ID, 2002, "subscription", "sub-it-1", 19.99)
		require.NoError(t, err)

		again, err := commissionSvc.ComputeCommission(ctx, affiliate.ID, 2002, "subscription", "sub-it-1", 19.99)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)

		var count int64
		require.NoError(t, db.Model(&models.Commission{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("唯一约束防止重复归因", func(t *testing.T) {
		dup := &models.Conversion{
			AffiliateID: affiliate.ID,
			UserID:      2002,
			ClickID:     click.ID,
			Type:        models.ConversionTypeSignup,
		}
		err := conversionRepo.Create(ctx, dup)
		assert.Error(t, err, "同一用户不应产生第二条转化记录")
	})
}

// TestRedisLockSemantics 提现锁的互斥语义（真实 Redis）
func TestRedisLockSemantics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	tc := NewTestContainers(ctx)

	err := tc.StartRedis(DefaultRedisConfig())
	require.NoError(t, err, "failed to start redis container")

	t.Cleanup(func() {
		_ = tc.Cleanup()
	})

	client, err := tc.GetRedisClient()
	require.NoError(t, err)

	key := "lock:withdraw:W20260101000000123456"

	// 首次抢锁成功
	ok, err := client.SetNX(ctx, key, "1", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, ok)

	// 持锁期间再次抢锁失败
	ok, err = client.SetNX(ctx, key, "1", time.Minute).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	// 释放后可重新获取
	require.NoError(t, client.Del(ctx, key).Err())
	ok, err = client.SetNX(ctx, key, "1", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestContainers_GetBeforeStart 未启动容器时获取连接应失败
func TestContainers_GetBeforeStart(t *testing.T) {
	ctx := context.Background()
	tc := NewTestContainers(ctx)

	_, err := tc.GetPostgresDB()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "postgres container not started")

	_, err = tc.GetRedisClient()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis container not started")
}

// TestContainers_CleanupWithoutStart 清理未启动的容器应该成功
func TestContainers_CleanupWithoutStart(t *testing.T) {
	ctx := context.Background()
	tc := NewTestContainers(ctx)

	err := tc.Cleanup()
	assert.NoError(t, err)
}
