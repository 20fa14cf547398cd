package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にエラーログを出力し、500エラーを返す。
// 署名用シークレットの設定不備によるパニックはクライアントの誤りと区別して記録する。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			}
			if err, ok := r.(error); ok && errors.Is(err, ErrMissingSigningSecret) {
				logger.Error("[CONFIG] 認証ゲートの設定不備", append(fields, zap.Error(err))...)
			} else {
				logger.Error("[PANIC] リクエスト処理中にパニック",
					append(fields, zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))...)
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "内部サーバーエラーが発生しました",
			})
		}()
		c.Next()
	}
}
