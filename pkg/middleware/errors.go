package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/bills/pkg/apperror"
)

// ErrorResponse はエラー時のJSONレスポンス構造。
type ErrorResponse struct {
	// Error はエラーメッセージ。
	Error string `json:"error"`
	// Code はエラー種別。
	Code string `json:"code"`
	// Details はバリデーションエラーの詳細。
	Details []string `json:"details,omitempty"`
	// RequestID はリクエストID。
	RequestID string `json:"request_id,omitempty"`
}

// StatusOf はエラーの種類に対応するHTTPステータスコードを返す。
// apperror.Errorを含まないエラーは委譲先のエラーとして500を返す。
func StatusOf(err error) int {
	kind, ok := apperror.KindOf(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}

	switch kind {
	case apperror.KindAuthentication:
		return http.StatusUnauthorized
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError はエラーをHTTPレスポンスに変換してリクエストを中断する。
// 元のエラーはc.Errorsに記録され、RequestLoggerで出力される。
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := StatusOf(err)
	resp := ErrorResponse{RequestID: GetRequestID(c)}

	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		resp.Error = appErr.Message
		resp.Code = string(appErr.Kind)
		resp.Details = appErr.Details
	case status == http.StatusGatewayTimeout:
		resp.Error = "処理がタイムアウトしました"
		resp.Code = "timeout"
	default:
		resp.Error = "内部サーバーエラーが発生しました"
		resp.Code = "internal"
	}

	c.AbortWithStatusJSON(status, resp)
}
