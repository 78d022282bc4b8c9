// Package portal 推广员门户 HTTP Handler
// 面向已登录用户：申请成为推广员、查看业绩、发起提现
package portal

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/response"
	affiliateService "github.com/dumeirei/affiliate-engine-backend/internal/service/affiliate"
	commissionService "github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
	settlementService "github.com/dumeirei/affiliate-engine-backend/internal/service/settlement"
)

// PortalHandler 推广员门户处理器
type PortalHandler struct {
	affiliateService  *affiliateService.AffiliateService
	inviteService     *affiliateService.InviteService
	commissionService *commissionService.CommissionService
	withdrawService   *settlementService.WithdrawService
}

// NewPortalHandler 创建推广员门户处理器
func NewPortalHandler(
	affiliateSvc *affiliateService.AffiliateService,
	inviteSvc *affiliateService.InviteService,
	commissionSvc *commissionService.CommissionService,
	withdrawSvc *settlementService.WithdrawService,
) *PortalHandler {
	return &PortalHandler{
		affiliateService:  affiliateSvc,
		inviteService:     inviteSvc,
		commissionService: commissionSvc,
		withdrawService:   withdrawSvc,
	}
}

// requireAffiliate 解析当前用户对应的推广员
func (h *PortalHandler) requireAffiliate(c *gin.Context) (int64, bool) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return 0, false
	}

	affiliate, err := h.affiliateService.GetByUserID(c.Request.Context(), userID)
	if handler.HandleError(c, err) {
		return 0, false
	}
	return affiliate.ID, true
}

// ApplyRequest 申请成为推广员请求
type ApplyRequest struct {
	Name string `json:"name" binding:"required,max=50"`
}

// Apply 申请成为推广员
// @Summary 申请成为推广员
// @Tags 推广员门户
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ApplyRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /portal/affiliate/apply [post]
func (h *PortalHandler) Apply(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	affiliate, err := h.affiliateService.Apply(c.Request.Context(), userID, req.Name)
	handler.MustSucceed(c, err, affiliate)
}

// GetProfile 获取当前用户的推广员信息
// @Summary 获取当前用户的推广员信息
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /portal/affiliate/me [get]
func (h *PortalHandler) GetProfile(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	affiliate, err := h.affiliateService.GetByUserID(c.Request.Context(), userID)
	handler.MustSucceed(c, err, affiliate)
}

// GetInviteInfo 获取推广链接与二维码
// @Summary 获取推广链接与二维码
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=affiliateService.InviteInfo}
// @Router /portal/affiliate/invite [get]
func (h *PortalHandler) GetInviteInfo(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	info, err := h.inviteService.GenerateInviteInfo(c.Request.Context(), affiliateID)
	handler.MustSucceed(c, err, info)
}

// GetStats 获取业绩统计
// @Summary 获取业绩统计
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=affiliateService.Stats}
// @Router /portal/affiliate/stats [get]
func (h *PortalHandler) GetStats(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	stats, err := h.affiliateService.GetStats(c.Request.Context(), affiliateID)
	handler.MustSucceed(c, err, stats)
}

// ListReferrals 获取推荐用户列表
// @Summary 获取推荐用户列表
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=[]affiliateService.Referral}
// @Router /portal/affiliate/referrals [get]
func (h *PortalHandler) ListReferrals(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	page := handler.BindPagination(c)

	list, total, err := h.affiliateService.ListReferrals(c.Request.Context(), affiliateID, page.GetOffset(), page.GetLimit())
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// ListCommissions 获取佣金记录
// @Summary 获取佣金记录
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=[]models.Commission}
// @Router /portal/commissions [get]
func (h *PortalHandler) ListCommissions(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	page := handler.BindPagination(c)

	list, total, err := h.commissionService.ListByAffiliate(c.Request.Context(), affiliateID, page.GetOffset(), page.GetLimit())
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// GetBalance 获取可提现余额
// @Summary 获取可提现余额
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /portal/withdrawals/balance [get]
func (h *PortalHandler) GetBalance(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	balance, err := h.withdrawService.GetAvailableBalance(c.Request.Context(), affiliateID)
	handler.MustSucceed(c, err, gin.H{"available_balance": balance})
}

// WithdrawRequest 提现申请请求
type WithdrawRequest struct {
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	PaymentMethod  string  `json:"payment_method" binding:"required,oneof=pix transfer"`
	PaymentDetails string  `json:"payment_details" binding:"required"`
}

// RequestWithdrawal 发起提现申请
// @Summary 发起提现申请
// @Tags 推广员门户
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body WithdrawRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.WithdrawalRequest}
// @Router /portal/withdrawals [post]
func (h *PortalHandler) RequestWithdrawal(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	withdrawal, err := h.withdrawService.RequestWithdrawal(c.Request.Context(), affiliateID, req.Amount, req.PaymentMethod, req.PaymentDetails)
	handler.MustSucceed(c, err, withdrawal)
}

// ListWithdrawals 获取提现记录
// @Summary 获取提现记录
// @Tags 推广员门户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=[]models.WithdrawalRequest}
// @Router /portal/withdrawals [get]
func (h *PortalHandler) ListWithdrawals(c *gin.Context) {
	affiliateID, ok := h.requireAffiliate(c)
	if !ok {
		return
	}

	page := handler.BindPagination(c)

	list, total, err := h.withdrawService.ListByAffiliate(c.Request.Context(), affiliateID, page.GetOffset(), page.GetLimit())
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// RegisterRoutes 注册路由
func (h *PortalHandler) RegisterRoutes(r *gin.RouterGroup) {
	portal := r.Group("/portal")
	{
		affiliate := portal.Group("/affiliate")
		{
			affiliate.POST("/apply", h.Apply)
			affiliate.GET("/me", h.GetProfile)
			affiliate.GET("/invite", h.GetInviteInfo)
			affiliate.GET("/stats", h.GetStats)
			affiliate.GET("/referrals", h.ListReferrals)
		}

		withdrawals := portal.Group("/withdrawals")
		{
			withdrawals.GET("/balance", h.GetBalance)
			withdrawals.POST("", h.RequestWithdrawal)
			withdrawals.GET("", h.ListWithdrawals)
		}

		portal.GET("/commissions", h.ListCommissions)
	}
}
