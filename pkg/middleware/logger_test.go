package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/bills/pkg/apperror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestRequestLogger はRequestLoggerミドルウェアを検証する。
func TestRequestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		handler   gin.HandlerFunc
		wantLevel zapcore.Level
		wantCode  int
	}{
		{
			name:      "成功時はinfoレベルで出力されること",
			handler:   func(c *gin.Context) { c.Status(http.StatusOK) },
			wantLevel: zapcore.InfoLevel,
			wantCode:  http.StatusOK,
		},
		{
			name:      "4xxはwarnレベルで出力されること",
			handler:   func(c *gin.Context) { AbortWithError(c, apperror.Authorization("forbidden")) },
			wantLevel: zapcore.WarnLevel,
			wantCode:  http.StatusForbidden,
		},
		{
			name:      "5xxはerrorレベルで出力されること",
			handler:   func(c *gin.Context) { c.Status(http.StatusInternalServerError) },
			wantLevel: zapcore.ErrorLevel,
			wantCode:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(RequestID(), RequestLogger(zap.New(core)))
			router.GET("/test", tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderRequestID, "req-log")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("ログ件数 = %d, want 1", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("ログレベル = %v, want %v", entry.Level, tt.wantLevel)
			}
			fields := entry.ContextMap()
			if fields["request_id"] != "req-log" {
				t.Errorf("request_id = %v, want %q", fields["request_id"], "req-log")
			}
			if fields["status"] != int64(tt.wantCode) {
				t.Errorf("status = %v, want %d", fields["status"], tt.wantCode)
			}
			if fields["path"] != "/test" {
				t.Errorf("path = %v, want %q", fields["path"], "/test")
			}
		})
	}
}
