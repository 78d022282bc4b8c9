// Package errors 定义业务错误码和错误处理
package errors

import (
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 支持 errors.Is 按错误码比较
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = New(1001, "参数错误")
	ErrNotFound        = New(1002, "资源不存在")
	ErrAlreadyExists   = New(1003, "资源已存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrRateLimitExceed = New(1007, "请求过于频繁")
	ErrOperationFailed = New(1008, "操作失败")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized     = New(2000, "未登录")
	ErrTokenExpired     = New(2001, "登录已过期")
	ErrTokenInvalid     = New(2002, "无效的令牌")
	ErrPermissionDenied = New(2003, "权限不足")
	ErrAccountDisabled  = New(2004, "账号已禁用")
	ErrPasswordError    = New(2005, "密码错误")
)

// 推广员错误码 (3000-3999)
var (
	ErrAffiliateNotFound    = New(3000, "推广员不存在")
	ErrAffiliateExists      = New(3001, "该用户已是推广员")
	ErrAffiliateNotApproved = New(3002, "推广员尚未审核通过")
	ErrAffiliateSuspended   = New(3003, "推广员已被冻结")
	ErrAffiliateStatusError = New(3004, "推广员状态不允许该操作")
	ErrInvalidRate          = New(3005, "无效的佣金比例")
)

// 归因错误码 (4000-4999)
var (
	ErrUnknownAffiliateCode = New(4000, "无效的推广码")
	ErrNoAttribution        = New(4001, "用户未归因，无法产生佣金")
	ErrClickNotFound        = New(4002, "点击记录不存在")
)

// 佣金错误码 (5000-5999)
var (
	ErrCommissionNotFound       = New(5000, "佣金记录不存在")
	ErrDuplicateQualifyingEvent = New(5001, "重复的合格事件")
	ErrInvalidBasePrice         = New(5002, "无效的事件金额")
)

// 结算错误码 (6000-6999)
var (
	ErrWithdrawalNotFound           = New(6000, "提现申请不存在")
	ErrInsufficientBalance          = New(6001, "可提现余额不足")
	ErrBelowMinimumWithdrawal       = New(6002, "低于最低提现金额")
	ErrIllegalTransition            = New(6003, "非法的提现状态流转")
	ErrConcurrentAllocationConflict = New(6004, "佣金分配冲突，请重试")
	ErrInvalidPaymentMethod         = New(6005, "无效的收款方式")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrUnknown.WithError(err)
}
