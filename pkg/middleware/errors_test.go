package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/bills/pkg/apperror"
)

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"認証エラー", apperror.Authentication("x", nil), http.StatusUnauthorized},
		{"認可エラー", apperror.Authorization("x"), http.StatusForbidden},
		{"バリデーションエラー", apperror.Validation("x"), http.StatusBadRequest},
		{"未検出エラー", apperror.NotFound("x"), http.StatusNotFound},
		{"競合エラー", apperror.Conflict("x", nil), http.StatusConflict},
		{"ラップされたバリデーションエラー", fmt.Errorf("wrap: %w", apperror.Validation("x")), http.StatusBadRequest},
		{"タイムアウト", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"委譲先の一般エラー", errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestAbortWithError はAbortWithErrorのレスポンス形式を検証する。
func TestAbortWithError(t *testing.T) {
	t.Parallel()

	serve := func(err error) (*httptest.ResponseRecorder, ErrorResponse) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			AbortWithError(c, err)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var body ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	t.Run("バリデーションエラーの詳細が返ること", func(t *testing.T) {
		t.Parallel()

		w, body := serve(apperror.Validation("クエリパラメータが不正です", "page: min", "size: max"))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if body.Code != "validation" {
			t.Errorf("code = %q, want %q", body.Code, "validation")
		}
		if len(body.Details) != 2 {
			t.Errorf("details = %v, want 2 items", body.Details)
		}
		if body.RequestID != "req-1" {
			t.Errorf("request_id = %q, want %q", body.RequestID, "req-1")
		}
	})

	t.Run("委譲先のエラーメッセージは隠蔽されること", func(t *testing.T) {
		t.Parallel()

		w, body := serve(errors.New("sql: connection refused at 10.0.0.1"))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if body.Error != "内部サーバーエラーが発生しました" {
			t.Errorf("error = %q", body.Error)
		}
		if body.Code != "internal" {
			t.Errorf("code = %q, want %q", body.Code, "internal")
		}
	})

	t.Run("タイムアウトは504が返ること", func(t *testing.T) {
		t.Parallel()

		w, body := serve(context.DeadlineExceeded)

		if w.Code != http.StatusGatewayTimeout {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusGatewayTimeout)
		}
		if body.Code != "timeout" {
			t.Errorf("code = %q, want %q", body.Code, "timeout")
		}
	})
}
