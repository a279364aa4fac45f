package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/bills/pkg/apperror"
)

// RequireRoles はロールベースのアクセス制御を行うGinミドルウェアを返す。
// Authenticateの後に適用し、ユーザーのロールがallowedRolesに含まれない場合は403を返す。
// ロールの比較は大文字小文字を区別しない。
func RequireRoles(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[normalizeRole(r)] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, apperror.Authentication("認証済みユーザーが見つかりません", nil))
			return
		}

		if _, ok := allowed[normalizeRole(user.Role)]; !ok {
			AbortWithError(c, apperror.Authorization("このロールではアクセスできません"))
			return
		}

		c.Next()
	}
}

func normalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}
