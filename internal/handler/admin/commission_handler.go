// Package admin 管理端 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	commissionService "github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
)

// CommissionHandler 佣金管理处理器
type CommissionHandler struct {
	commissionService *commissionService.CommissionService
	expirationService *commissionService.ExpirationService
}

// NewCommissionHandler 创建佣金管理处理器
func NewCommissionHandler(
	commissionSvc *commissionService.CommissionService,
	expirationSvc *commissionService.ExpirationService,
) *CommissionHandler {
	return &CommissionHandler{
		commissionService: commissionSvc,
		expirationService: expirationSvc,
	}
}

// List 获取佣金记录列表
// @Summary 获取佣金记录列表
// @Tags 管理-佣金
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query string false "状态筛选"
// @Param type query string false "事件类型筛选"
// @Param affiliate_id query int false "推广员筛选"
// @Success 200 {object} response.Response{data=[]models.Commission}
// @Router /admin/commissions [get]
func (h *CommissionHandler) List(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	page := handler.BindPagination(c)

	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if eventType := c.Query("type"); eventType != "" {
		filters["type"] = eventType
	}
	affiliateID, ok := handler.ParseQueryID(c, "affiliate_id", "推广员")
	if !ok {
		return
	}
	if affiliateID != nil {
		filters["affiliate_id"] = *affiliateID
	}

	list, total, err := h.commissionService.List(c.Request.Context(), page.GetOffset(), page.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// Get 获取佣金详情
// @Summary 获取佣金详情
// @Tags 管理-佣金
// @Produce json
// @Security Bearer
// @Param id path int true "佣金 ID"
// @Success 200 {object} response.Response{data=models.Commission}
// @Router /admin/commissions/{id} [get]
func (h *CommissionHandler) Get(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	id, ok := handler.ParseID(c, "佣金记录")
	if !ok {
		return
	}

	commission, err := h.commissionService.GetByID(c.Request.Context(), id)
	handler.MustSucceed(c, err, commission)
}

// Sweep 手动触发一轮确认评估
// @Summary 手动触发佣金确认评估
// @Tags 管理-佣金
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /admin/commissions/sweep [post]
func (h *CommissionHandler) Sweep(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	confirmed, err := h.expirationService.Sweep(c.Request.Context())
	handler.MustSucceed(c, err, gin.H{"confirmed": confirmed})
}

// RegisterRoutes 注册路由
func (h *CommissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	commissions := r.Group("/commissions")
	{
		commissions.GET("", h.List)
		commissions.GET("/:id", h.Get)
		commissions.POST("/sweep", h.Sweep)
	}
}
