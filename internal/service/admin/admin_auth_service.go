// Package admin 提供管理员相关服务
package admin

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/crypto"
	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/jwt"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// AdminAuthService 管理员认证服务
type AdminAuthService struct {
	adminRepo  *repository.AdminRepository
	jwtManager *jwt.Manager
}

// NewAdminAuthService 创建管理员认证服务
func NewAdminAuthService(adminRepo *repository.AdminRepository, jwtManager *jwt.Manager) *AdminAuthService {
	return &AdminAuthService{
		adminRepo:  adminRepo,
		jwtManager: jwtManager,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IP       string `json:"-"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Admin     *AdminInfo     `json:"admin"`
	TokenPair *jwt.TokenPair `json:"token"`
}

// AdminInfo 管理员信息（不含敏感字段）
type AdminInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Login 管理员登录
func (s *AdminAuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPasswordError
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if admin.Status != models.AdminStatusActive {
		return nil, apperrors.ErrAccountDisabled
	}

	if !crypto.VerifyPassword(req.Password, admin.PasswordHash) {
		return nil, apperrors.ErrPasswordError
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(admin.ID, jwt.UserTypeAdmin, admin.Role)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	// 登录信息更新失败不阻塞登录
	_ = s.adminRepo.UpdateLoginInfo(ctx, admin.ID, req.IP)

	return &LoginResponse{
		Admin:     s.toAdminInfo(admin),
		TokenPair: tokenPair,
	}, nil
}

// GetAdminInfo 获取管理员信息
func (s *AdminAuthService) GetAdminInfo(ctx context.Context, adminID int64) (*AdminInfo, error) {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return s.toAdminInfo(admin), nil
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=32"`
}

// ChangePassword 修改密码
func (s *AdminAuthService) ChangePassword(ctx context.Context, adminID int64, req *ChangePasswordRequest) error {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}

	if !crypto.VerifyPassword(req.OldPassword, admin.PasswordHash) {
		return apperrors.ErrPasswordError
	}

	passwordHash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		return apperrors.ErrInternalError.WithError(err)
	}

	return s.adminRepo.UpdatePassword(ctx, adminID, passwordHash)
}

// RefreshToken 刷新令牌
func (s *AdminAuthService) RefreshToken(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	return s.jwtManager.RefreshToken(refreshToken)
}

// ValidateAdminToken 验证管理员令牌
func (s *AdminAuthService) ValidateAdminToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.jwtManager.ParseToken(token)
	if err != nil {
		return nil, apperrors.ErrTokenInvalid
	}

	if claims.UserType != jwt.UserTypeAdmin {
		return nil, apperrors.ErrTokenInvalid
	}

	admin, err := s.adminRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if admin.Status != models.AdminStatusActive {
		return nil, apperrors.ErrAccountDisabled
	}

	return claims, nil
}

func (s *AdminAuthService) toAdminInfo(admin *models.Admin) *AdminInfo {
	return &AdminInfo{
		ID:       admin.ID,
		Username: admin.Username,
		Name:     admin.Name,
		Role:     admin.Role,
	}
}
