// Package tracking 推广追踪 HTTP Handler
// 点击/注册/合格事件上报入口，由外部业务系统调用
package tracking

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/dumeirei/affiliate-engine-backend/internal/common/errors"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/handler"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/response"
	attributionService "github.com/dumeirei/affiliate-engine-backend/internal/service/attribution"
	commissionService "github.com/dumeirei/affiliate-engine-backend/internal/service/commission"
)

// TrackingHandler 推广追踪处理器
type TrackingHandler struct {
	trackerService    *attributionService.TrackerService
	linkerService     *attributionService.LinkerService
	commissionService *commissionService.CommissionService
}

// NewTrackingHandler 创建推广追踪处理器
func NewTrackingHandler(
	trackerSvc *attributionService.TrackerService,
	linkerSvc *attributionService.LinkerService,
	commissionSvc *commissionService.CommissionService,
) *TrackingHandler {
	return &TrackingHandler{
		trackerService:    trackerSvc,
		linkerService:     linkerSvc,
		commissionService: commissionSvc,
	}
}

// RecordClick 记录推广点击
// @Summary 记录推广点击
// @Tags 推广追踪
// @Produce json
// @Param code path string true "推广码"
// @Param source query string false "来源标记"
// @Success 200 {object} response.Response
// @Router /track/click/{code} [post]
func (h *TrackingHandler) RecordClick(c *gin.Context) {
	code := c.Param("code")
	source := c.Query("source")

	clickID, err := h.trackerService.RecordClick(c.Request.Context(), code, source)
	handler.MustSucceed(c, err, gin.H{"click_id": clickID})
}

// SignupRequest 注册归因请求
type SignupRequest struct {
	Code   string `json:"code" binding:"required"`
	UserID int64  `json:"user_id" binding:"required"`
}

// LinkSignup 注册归因
// 无可归因点击或用户已有归因时静默成功，不向调用方暴露归因细节
// @Summary 注册归因
// @Tags 推广追踪
// @Accept json
// @Produce json
// @Param request body SignupRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /track/signup [post]
func (h *TrackingHandler) LinkSignup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	conversion, err := h.linkerService.LinkSignup(c.Request.Context(), req.Code, req.UserID)
	if handler.HandleError(c, err) {
		return
	}

	attributed := conversion != nil
	response.Success(c, gin.H{"attributed": attributed})
}

// EventRequest 合格事件上报请求
type EventRequest struct {
	UserID      int64   `json:"user_id" binding:"required"`
	Type        string  `json:"type" binding:"required,oneof=author_registration subscription"`
	ReferenceID string  `json:"reference_id" binding:"required"`
	BasePrice   float64 `json:"base_price" binding:"required,gt=0"`
}

// RecordEvent 上报合格事件并计佣
// 未归因用户静默成功，不产生佣金
// @Summary 上报合格事件
// @Tags 推广追踪
// @Accept json
// @Produce json
// @Param request body EventRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Commission}
// @Router /track/event [post]
func (h *TrackingHandler) RecordEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	commission, err := h.commissionService.ComputeForUser(c.Request.Context(), req.UserID, req.Type, req.ReferenceID, req.BasePrice)
	if errors.Is(err, apperrors.ErrNoAttribution) {
		response.Success(c, nil)
		return
	}
	handler.MustSucceed(c, err, commission)
}

// RegisterRoutes 注册路由
func (h *TrackingHandler) RegisterRoutes(r *gin.RouterGroup) {
	track := r.Group("/track")
	{
		track.POST("/click/:code", h.RecordClick)
		track.POST("/signup", h.LinkSignup)
		track.POST("/event", h.RecordEvent)
	}
}
