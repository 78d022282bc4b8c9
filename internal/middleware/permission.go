// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/response"
	"github.com/dumeirei/affiliate-engine-backend/internal/models"
)

// RequireRoles 要求指定角色
// 超级管理员不受角色限制
func RequireRoles(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if role == models.AdminRoleSuperAdmin {
			c.Next()
			return
		}

		if _, ok := roleSet[role]; !ok {
			response.Forbidden(c, "权限不足")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireSuperAdmin 要求超级管理员权限
func RequireSuperAdmin() gin.HandlerFunc {
	return RequireRoles(models.AdminRoleSuperAdmin)
}

// RequireOperator 要求运营权限（审核推广员等日常操作）
func RequireOperator() gin.HandlerFunc {
	return RequireRoles(models.AdminRoleOperator)
}

// RequireFinance 要求财务权限（提现审核与打款）
func RequireFinance() gin.HandlerFunc {
	return RequireRoles(models.AdminRoleFinance)
}
