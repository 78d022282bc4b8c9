// Package admin 管理端 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/crypto"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/response"
	settlementService "github.com/dumeirei/affiliate-engine-backend/internal/service/settlement"
)

// WithdrawalHandler 提现审核处理器
type WithdrawalHandler struct {
	withdrawService *settlementService.WithdrawService
}

// NewWithdrawalHandler 创建提现审核处理器
func NewWithdrawalHandler(withdrawSvc *settlementService.WithdrawService) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawService: withdrawSvc,
	}
}

// List 获取提现列表
// @Summary 获取提现列表
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "状态筛选"
// @Param affiliate_id query int false "推广员筛选"
// @Success 200 {object} response.Response{data=[]models.WithdrawalRequest}
// @Router /admin/withdrawals [get]
func (h *WithdrawalHandler) List(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	page := handler.BindPagination(c)

	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "推广员")
	if !ok {
		return
	}
	if affiliateID != nil {
		filters["affiliate_id"] = *affiliateID
	}

	list, total, err := h.withdrawService.List(c.Request.Context(), page.GetOffset(), page.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// GetPending 获取待审核提现列表
// @Summary 获取待审核提现列表
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=[]models.WithdrawalRequest}
// @Router /admin/withdrawals/pending [get]
func (h *WithdrawalHandler) GetPending(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	page := handler.BindPagination(c)

	list, total, err := h.withdrawService.GetPendingList(c.Request.Context(), page.GetOffset(), page.GetLimit())
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// Get 获取提现详情
// @Summary 获取提现详情（含分配的佣金记录）
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param id path int true "提现 ID"
// @Success 200 {object} response.Response
// @Router /admin/withdrawals/{id} [get]
func (h *WithdrawalHandler) Get(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "提现申请")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawService.GetByID(c.Request.Context(), id)
	if handler.HandleError(c, err) {
		return
	}

	allocations, err := h.withdrawService.GetAllocations(c.Request.Context(), id)
	if handler.HandleError(c, err) {
		return
	}

	// 详情页只展示脱敏后的收款信息，完整信息走单独接口
	masked := ""
	if details, err := h.withdrawService.DecryptPaymentDetails(withdrawal); err == nil {
		masked = crypto.MaskPixKey(details)
	}

	response.Success(c, gin.H{
		"withdrawal":      withdrawal,
		"allocations":     allocations,
		"payment_details": masked,
	})
}

// GetPaymentDetails 查看收款信息
// @Summary 查看提现收款信息（解密）
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param id path int true "提现 ID"
// @Success 200 {object} response.Response
// @Router /admin/withdrawals/{id}/payment-details [get]
func (h *WithdrawalHandler) GetPaymentDetails(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "提现申请")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawService.GetByID(c.Request.Context(), id)
	if handler.HandleError(c, err) {
		return
	}

	details, err := h.withdrawService.DecryptPaymentDetails(withdrawal)
	if handler.HandleError(c, err) {
		return
	}

	response.Success(c, gin.H{"payment_details": details})
}

// AdvanceStatusRequest 提现状态流转请求
type AdvanceStatusRequest struct {
	Status string  `json:"status" binding:"required,oneof=approved processing paid rejected"`
	Reason *string `json:"reason"`
}

// AdvanceStatus 推进提现状态
// @Summary 推进提现状态
// @Tags 管理-提现
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "提现 ID"
// @Param request body AdvanceStatusRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/withdrawals/{id}/status [put]
func (h *WithdrawalHandler) AdvanceStatus(c *gin.Context) {
	adminID, ok := handler.RequireAdminID(c)
	if !ok {
		return
	}

	id, ok := handler.ParseID(c, "提现申请")
	if !ok {
		return
	}

	var req AdvanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.withdrawService.AdvanceStatus(c.Request.Context(), id, req.Status, &adminID, req.Reason)
	handler.MustSucceed(c, err, nil)
}

// RegisterRoutes 注册路由
func (h *WithdrawalHandler) RegisterRoutes(r *gin.RouterGroup) {
	withdrawals := r.Group("/withdrawals")
	{
		withdrawals.GET("", h.List)
		withdrawals.GET("/pending", h.GetPending)
		withdrawals.GET("/:id", h.Get)
		withdrawals.GET("/:id/payment-details", h.GetPaymentDetails)
		withdrawals.PUT("/:id/status", h.AdvanceStatus)
	}
}
