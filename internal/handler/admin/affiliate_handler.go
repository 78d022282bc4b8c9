// Package admin 管理端 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/response"
	affiliateService "github.com/dumeirei/affiliate-engine-backend/internal/service/affiliate"
)

// AffiliateHandler 推广员管理处理器
type AffiliateHandler struct {
	affiliateService *affiliateService.AffiliateService
}

// NewAffiliateHandler 创建推广员管理处理器
func NewAffiliateHandler(affiliateSvc *affiliateService.AffiliateService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService: affiliateSvc,
	}
}

// List 获取推广员列表
// @Summary 获取推广员列表
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "状态筛选"
// @Param level query string false "等级筛选"
// @Param keyword query string false "推广码/名称搜索"
// @Success 200 {object} response.Response{data=[]models.Affiliate}
// @Router /admin/affiliates [get]
func (h *AffiliateHandler) List(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	page := handler.BindPagination(c)

	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if level := c.Query("level"); level != "" {
		filters["level"] = level
	}
	if keyword := c.Query("keyword"); keyword != "" {
		filters["keyword"] = keyword
	}

	list, total, err := h.affiliateService.List(c.Request.Context(), page.GetOffset(), page.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// Get 获取推广员详情
// @Summary 获取推广员详情
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response{data=models.Affiliate}
// @Router /admin/affiliates/{id} [get]
func (h *AffiliateHandler) Get(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	affiliate, err := h.affiliateService.GetByID(c.Request.Context(), id)
	handler.MustSucceed(c, err, affiliate)
}

// GetStats 获取推广员业绩统计
// @Summary 获取推广员业绩统计
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response{data=affiliateService.Stats}
// @Router /admin/affiliates/{id}/stats [get]
func (h *AffiliateHandler) GetStats(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	stats, err := h.affiliateService.GetStats(c.Request.Context(), id)
	handler.MustSucceed(c, err, stats)
}

// Approve 审核通过
// @Summary 审核通过推广员申请
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/approve [put]
func (h *AffiliateHandler) Approve(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	err := h.affiliateService.Approve(c.Request.Context(), id)
	handler.MustSucceed(c, err, nil)
}

// Reject 审核拒绝
// @Summary 拒绝推广员申请
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/reject [put]
func (h *AffiliateHandler) Reject(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	err := h.affiliateService.Reject(c.Request.Context(), id)
	handler.MustSucceed(c, err, nil)
}

// Suspend 冻结推广员
// @Summary 冻结推广员
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/suspend [put]
func (h *AffiliateHandler) Suspend(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	err := h.affiliateService.Suspend(c.Request.Context(), id)
	handler.MustSucceed(c, err, nil)
}

// Reinstate 解除冻结
// @Summary 解除推广员冻结
// @Tags 管理-推广员
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/reinstate [put]
func (h *AffiliateHandler) Reinstate(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	err := h.affiliateService.Reinstate(c.Request.Context(), id)
	handler.MustSucceed(c, err, nil)
}

// SetLevelRequest 调整等级请求
type SetLevelRequest struct {
	Level string `json:"level" binding:"required,oneof=bronze silver gold"`
}

// SetLevel 调整推广员等级
// @Summary 调整推广员等级
// @Tags 管理-推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Param request body SetLevelRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/level [put]
func (h *AffiliateHandler) SetLevel(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	var req SetLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.affiliateService.SetLevel(c.Request.Context(), id, req.Level)
	handler.MustSucceed(c, err, nil)
}

// SetRateRequest 设置自定义佣金比例请求
// rate 为空时清除自定义比例，回落到等级默认
type SetRateRequest struct {
	Rate *float64 `json:"rate"`
}

// SetRate 设置自定义佣金比例
// @Summary 设置推广员自定义佣金比例
// @Tags 管理-推广员
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "推广员 ID"
// @Param request body SetRateRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/affiliates/{id}/rate [put]
func (h *AffiliateHandler) SetRate(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "推广员")
	if !ok {
		return
	}

	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.affiliateService.SetCustomRate(c.Request.Context(), id, req.Rate)
	handler.MustSucceed(c, err, nil)
}

// RegisterRoutes 注册路由
func (h *AffiliateHandler) RegisterRoutes(r *gin.RouterGroup) {
	affiliates := r.Group("/affiliates")
	{
		affiliates.GET("", h.List)
		affiliates.GET("/:id", h.Get)
		affiliates.GET("/:id/stats", h.GetStats)
		affiliates.PUT("/:id/approve", h.Approve)
		affiliates.PUT("/:id/reject", h.Reject)
		affiliates.PUT("/:id/suspend", h.Suspend)
		affiliates.PUT("/:id/reinstate", h.Reinstate)
		affiliates.PUT("/:id/level", h.SetLevel)
		affiliates.PUT("/:id/rate", h.SetRate)
	}
}
