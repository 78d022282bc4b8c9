// Package admin 管理端 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	"github.com/dumeirei/affiliate-engine-backend/internal/repository"
)

// SystemHandler 系统管理处理器
type SystemHandler struct {
	operationLogRepo *repository.OperationLogRepository
}

// NewSystemHandler 创建系统管理处理器
func NewSystemHandler(operationLogRepo *repository.OperationLogRepository) *SystemHandler {
	return &SystemHandler{
		operationLogRepo: operationLogRepo,
	}
}

// ListOperationLogs 获取操作日志列表
// @Summary 获取操作日志列表
// @Tags 管理-系统
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param module query string false "模块筛选"
// @Param action query string false "操作筛选"
// @Param admin_id query int false "操作人筛选"
// @Success 200 {object} response.Response{data=[]models.OperationLog}
// @Router /admin/system/logs [get]
func (h *SystemHandler) ListOperationLogs(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	page := handler.BindPagination(c)

	filters := make(map[string]interface{})
	if module := c.Query("module"); module != "" {
		filters["module"] = module
	}
	if action := c.Query("action"); action != "" {
		filters["action"] = action
	}
	adminID, ok := handler.ParseQueryID(c, "admin_id", "管理员")
	if !ok {
		return
	}
	if adminID != nil {
		filters["admin_id"] = *adminID
	}

	list, total, err := h.operationLogRepo.List(c.Request.Context(), page.GetOffset(), page.GetLimit(), filters)
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// ListTargetLogs 获取指定对象的操作轨迹
// @Summary 获取指定对象的操作轨迹
// @Tags 管理-系统
// @Produce json
// @Security Bearer
// @Param target_type path string true "对象类型"
// @Param id path int true "对象 ID"
// @Success 200 {object} response.Response{data=[]models.OperationLog}
// @Router /admin/system/logs/{target_type}/{id} [get]
func (h *SystemHandler) ListTargetLogs(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	targetID, ok := handler.ParseID(c, "对象")
	if !ok {
		return
	}
	targetType := c.Param("target_type")

	page := handler.BindPagination(c)

	list, total, err := h.operationLogRepo.ListByTarget(c.Request.Context(), targetType, targetID, page.GetOffset(), page.GetLimit())
	handler.MustSucceedPage(c, err, list, total, page.Page, page.PageSize)
}

// RegisterRoutes 注册路由
func (h *SystemHandler) RegisterRoutes(r *gin.RouterGroup) {
	system := r.Group("/system")
	{
		system.GET("/logs", h.ListOperationLogs)
		system.GET("/logs/:target_type/:id", h.ListTargetLogs)
	}
}
