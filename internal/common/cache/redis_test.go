// Package cache Redis 缓存模块单元测试
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis 创建 miniredis 测试实例
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// setupTestRedis 初始化测试 Redis 客户端
func setupTestRedis(t *testing.T, s *miniredis.Miniredis) {
	rdb = redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
		rdb = nil
	})
}

// ==================== Init 函数测试 ====================

func TestInit_Success(t *testing.T) {
	s := setupMiniRedis(t)

	cfg := &config.RedisConfig{
		Host:         s.Host(),
		Port:         s.Server().Addr().Port,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5,
		ReadTimeout:  3,
		WriteTimeout: 3,
	}

	client, err := Init(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, client)
	t.Cleanup(func() {
		_ = Close()
	})
}

func TestInit_ConnectionFailed(t *testing.T) {
	cfg := &config.RedisConfig{
		Host:        "invalid-host",
		Port:        9999,
		DialTimeout: 1,
	}

	client, err := Init(cfg)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect redis")
}

// ==================== GetClient / Close 测试 ====================

func TestGetClient(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)

	client := GetClient()
	assert.NotNil(t, client)
	assert.Equal(t, rdb, client)
}

func TestClose_WithNilClient(t *testing.T) {
	rdb = nil
	err := Close()
	assert.NoError(t, err)
}

func TestClose_WithClient(t *testing.T) {
	s := setupMiniRedis(t)
	rdb = redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	err := Close()
	assert.NoError(t, err)
}

// ==================== Set / Get 测试 ====================

func TestSet_And_Get(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	// 设置值
	type TestData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	data := TestData{Name: "test", Value: 123}

	err := Set(ctx, "test:key", data, time.Minute)
	assert.NoError(t, err)

	// 获取值
	var result TestData
	err = Get(ctx, "test:key", &result)
	assert.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestGet_NotFound(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	var result string
	err := Get(ctx, "nonexistent:key", &result)
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
}

func TestSet_MarshalError(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	// 无法序列化的值（包含 channel）
	ch := make(chan int)
	err := Set(ctx, "test:channel", ch, time.Minute)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal value")
}

// ==================== SetString / GetString 测试 ====================

func TestSetString_And_GetString(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	err := SetString(ctx, "str:key", "hello world", time.Minute)
	assert.NoError(t, err)

	result, err := GetString(ctx, "str:key")
	assert.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func TestGetString_NotFound(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	_, err := GetString(ctx, "nonexistent:str")
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
}

// ==================== Delete 测试 ====================

func TestDelete(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	// 设置值
	_ = SetString(ctx, "del:key1", "value1", time.Minute)
	_ = SetString(ctx, "del:key2", "value2", time.Minute)

	// 删除
	err := Delete(ctx, "del:key1", "del:key2")
	assert.NoError(t, err)

	// 验证删除
	_, err = GetString(ctx, "del:key1")
	assert.Equal(t, redis.Nil, err)

	_, err = GetString(ctx, "del:key2")
	assert.Equal(t, redis.Nil, err)
}

// ==================== Exists 测试 ====================

func TestExists(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	// 不存在
	exists, err := Exists(ctx, "check:key")
	assert.NoError(t, err)
	assert.False(t, exists)

	// 设置后存在
	_ = SetString(ctx, "check:key", "value", time.Minute)
	exists, err = Exists(ctx, "check:key")
	assert.NoError(t, err)
	assert.True(t, exists)
}

// ==================== Expire / TTL 测试 ====================

func TestExpire_And_TTL(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	_ = SetString(ctx, "ttl:key", "value", time.Hour)

	// 修改过期时间
	err := Expire(ctx, "ttl:key", time.Minute)
	assert.NoError(t, err)

	// 获取 TTL
	ttl, err := TTL(ctx, "ttl:key")
	assert.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
	assert.Greater(t, ttl, time.Duration(0))
}

// ==================== Incr 测试 ====================

func TestIncr(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	key := BuildKey(KeyPrefixRateLimit, "track", "10.0.0.1")

	val, err := Incr(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = Incr(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

// ==================== SetNX 测试 ====================

func TestSetNX(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	// 第一次设置成功
	ok, err := SetNX(ctx, "lock:key", "owner1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// 第二次设置失败（键已存在）
	ok, err = SetNX(ctx, "lock:key", "owner2", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)
}

// ==================== TryLock / Unlock 测试 ====================

func TestTryLock_MutualExclusion(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	key := BuildKey(KeyPrefixSettleLock, "42")

	// 首次抢锁成功
	ok, err := TryLock(ctx, key, time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// 持锁期间再次抢锁失败
	ok, err = TryLock(ctx, key, time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	// 释放后可重新获取
	Unlock(ctx, key)
	ok, err = TryLock(ctx, key, time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLock_ExpiresAutomatically(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	ok, err := TryLock(ctx, KeyPrefixSweepLock, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// miniredis 手动推进时间触发过期
	s.FastForward(2 * time.Minute)

	ok, err = TryLock(ctx, KeyPrefixSweepLock, time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok, "锁过期后应可重新获取")
}

func TestTryLock_WithoutRedis(t *testing.T) {
	// Redis 未初始化时锁退化为直通，正确性由数据库条件更新兜底
	rdb = nil

	ok, err := TryLock(context.Background(), "lock:any", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// 不应 panic
	Unlock(context.Background(), "lock:any")
}

// ==================== BuildKey 测试 ====================

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		parts    []string
		expected string
	}{
		{
			name:     "single part",
			prefix:   KeyPrefixAffiliate,
			parts:    []string{"12345"},
			expected: "affiliate:12345",
		},
		{
			name:     "balance key",
			prefix:   KeyPrefixBalance,
			parts:    []string{"42"},
			expected: "affiliate:balance:42",
		},
		{
			name:     "rate limit key",
			prefix:   KeyPrefixRateLimit,
			parts:    []string{"track", "10.0.0.1", "AB12CD34"},
			expected: "ratelimit:track:10.0.0.1:AB12CD34",
		},
		{
			name:     "lock key",
			prefix:   KeyPrefixLock,
			parts:    []string{"withdraw", "W20260111001"},
			expected: "lock:withdraw:W20260111001",
		},
		{
			name:     "settle lock key",
			prefix:   KeyPrefixSettleLock,
			parts:    []string{"42"},
			expected: "lock:settle:42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildKey(tt.prefix, tt.parts...)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// ==================== 缓存键前缀常量测试 ====================

func TestCacheKeyPrefixes(t *testing.T) {
	assert.Equal(t, "affiliate:", KeyPrefixAffiliate)
	assert.Equal(t, "affiliate:balance:", KeyPrefixBalance)
	assert.Equal(t, "session:", KeyPrefixSession)
	assert.Equal(t, "ratelimit:", KeyPrefixRateLimit)
	assert.Equal(t, "lock:", KeyPrefixLock)
	assert.Equal(t, "lock:settle:", KeyPrefixSettleLock)
	assert.Equal(t, "lock:sweep", KeyPrefixSweepLock)
}

// ==================== 复杂数据结构测试 ====================

func TestSet_ComplexStruct(t *testing.T) {
	s := setupMiniRedis(t)
	setupTestRedis(t, s)
	ctx := context.Background()

	type DailyPoint struct {
		Date   string `json:"date"`
		Clicks int64  `json:"clicks"`
	}
	type DashboardStats struct {
		AffiliateID   int64        `json:"affiliate_id"`
		Code          string       `json:"code"`
		TotalClicks   int64        `json:"total_clicks"`
		PendingAmount float64      `json:"pending_amount"`
		RecentClicks  []DailyPoint `json:"recent_clicks"`
		RefreshedAt   time.Time    `json:"refreshed_at"`
	}

	stats := DashboardStats{
		AffiliateID:   42,
		Code:          "AB12CD34",
		TotalClicks:   1280,
		PendingAmount: 356.75,
		RecentClicks: []DailyPoint{
			{Date: "2026-01-10", Clicks: 87},
			{Date: "2026-01-11", Clicks: 132},
		},
		RefreshedAt: time.Now().Truncate(time.Second),
	}

	key := BuildKey(KeyPrefixAffiliate, "stats", "42")
	err := Set(ctx, key, stats, time.Hour)
	assert.NoError(t, err)

	var result DashboardStats
	err = Get(ctx, key, &result)
	assert.NoError(t, err)
	assert.Equal(t, stats.AffiliateID, result.AffiliateID)
	assert.Equal(t, stats.Code, result.Code)
	assert.Equal(t, stats.TotalClicks, result.TotalClicks)
	assert.InDelta(t, stats.PendingAmount, result.PendingAmount, 1e-9)
	assert.Len(t, result.RecentClicks, 2)
	assert.Equal(t, stats.RecentClicks[0].Date, result.RecentClicks[0].Date)
}
