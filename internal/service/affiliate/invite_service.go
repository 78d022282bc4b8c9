package affiliate

import (
	"context"
	"fmt"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/qrcode"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// InviteService 推广物料服务
type InviteService struct {
	affiliateRepo *repository.AffiliateRepository
	qrGenerator   *qrcode.Generator
	baseURL       string
}

// NewInviteService 创建推广物料服务
func NewInviteService(affiliateRepo *repository.AffiliateRepository, baseURL string) *InviteService {
	if baseURL == "" {
		baseURL = "https://app.example.com"
	}
	return &InviteService{
		affiliateRepo: affiliateRepo,
		qrGenerator:   qrcode.NewGenerator(qrcode.WithSize(256)),
		baseURL:       baseURL,
	}
}

// InviteInfo 推广物料
type InviteInfo struct {
	Code         string `json:"code"`          // 推广码
	Link         string `json:"link"`          // 推广链接
	QRCodeBase64 string `json:"qrcode_base64"` // 推广二维码（data URL）
}

// GenerateInviteInfo 生成推广链接与二维码
func (s *InviteService) GenerateInviteInfo(ctx context.Context, affiliateID int64) (*InviteInfo, error) {
	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, apperrors.ErrAffiliateNotFound
	}
	if !affiliate.IsApproved() {
		return nil, apperrors.ErrAffiliateNotApproved
	}

	link := fmt.Sprintf("%s/r/%s", s.baseURL, affiliate.Code)
	dataURL, err := s.qrGenerator.GenerateDataURL(link)
	if err != nil {
		return nil, apperrors.ErrInternalError.WithError(err)
	}

	return &InviteInfo{
		Code:         affiliate.Code,
		Link:         link,
		QRCodeBase64: dataURL,
	}, nil
}
