// Package repository 操作日志仓储单元测试
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/utils"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

func setupOperationLogTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.OperationLog{}, &models.Admin{})
	require.NoError(t, err)

	return db
}

func TestOperationLogRepository_Create(t *testing.T) {
	db := setupOperationLogTestDB(t)
	repo := NewOperationLogRepository(db)
	ctx := context.Background()

	log := &models.OperationLog{
		AdminID:    1,
		Module:     "withdrawal",
		Action:     "approve",
		TargetType: utils.StringPtr("withdrawal"),
		TargetID:   utils.Int64Ptr(10),
		IP:         "10.0.0.1",
	}

	err := repo.Create(ctx, log)
	require.NoError(t, err)
	assert.NotZero(t, log.ID)
}

func TestOperationLogRepository_ListByTarget(t *testing.T) {
	db := setupOperationLogTestDB(t)
	repo := NewOperationLogRepository(db)
	ctx := context.Background()

	db.Create(&models.OperationLog{
		AdminID: 1, Module: "withdrawal", Action: "approve",
		TargetType: utils.StringPtr("withdrawal"), TargetID: utils.Int64Ptr(10), IP: "10.0.0.1",
	})
	db.Create(&models.OperationLog{
		AdminID: 2, Module: "withdrawal", Action: "mark_paid",
		TargetType: utils.StringPtr("withdrawal"), TargetID: utils.Int64Ptr(10), IP: "10.0.0.2",
	})
	db.Create(&models.OperationLog{
		AdminID: 1, Module: "affiliate", Action: "approve",
		TargetType: utils.StringPtr("affiliate"), TargetID: utils.Int64Ptr(3), IP: "10.0.0.1",
	})

	logs, total, err := repo.ListByTarget(ctx, "withdrawal", 10, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, logs, 2)
}

func TestOperationLogRepository_DeleteBefore(t *testing.T) {
	db := setupOperationLogTestDB(t)
	repo := NewOperationLogRepository(db)
	ctx := context.Background()

	old := &models.OperationLog{AdminID: 1, Module: "withdrawal", Action: "approve", IP: "10.0.0.1"}
	db.Create(old)
	db.Model(old).Update("created_at", time.Now().AddDate(0, -7, 0))

	db.Create(&models.OperationLog{AdminID: 1, Module: "withdrawal", Action: "approve", IP: "10.0.0.1"})

	deleted, err := repo.DeleteBefore(ctx, time.Now().AddDate(0, -6, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.List(ctx, 0, 10, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
