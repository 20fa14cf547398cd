package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrMissingSigningSecret は署名用シークレットが設定されていないことを表す。
// クライアントの誤りではなく設定不備であり、401/403には変換しない。
var ErrMissingSigningSecret = errors.New("middleware: JWT署名用シークレットが設定されていません")

// レスポンスのエラーメッセージ。
const (
	msgNoToken      = "No token provided"
	msgInvalidToken = "Invalid token"
)

// headerKeyUserID は認証済みユーザーIDを返すHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// validMethods は受け付ける署名アルゴリズム。共有鍵方式のみ許可する。
var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// JWTAuthenticator はBearerトークンを検証する認証ゲート。
// 保持するのは不変のシークレットと検証オプションのみで、並行に呼び出してよい。
type JWTAuthenticator struct {
	// secret はトークン検証用の共有鍵。
	secret []byte
	// leeway は有効期限判定で許容する時計のずれ。
	leeway time.Duration
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
	// logger は検証失敗の詳細を出力するロガー。
	logger *zap.Logger
}

// JWTOption はJWTAuthenticatorの設定を変更する関数。
type JWTOption func(*JWTAuthenticator)

// WithLeeway は有効期限判定で許容する時計のずれを設定する。
func WithLeeway(d time.Duration) JWTOption {
	return func(a *JWTAuthenticator) {
		a.leeway = d
	}
}

// WithClock は現在時刻を返す関数を設定する。
func WithClock(now func() time.Time) JWTOption {
	return func(a *JWTAuthenticator) {
		a.now = now
	}
}

// WithLogger は検証失敗の詳細を出力するロガーを設定する。
func WithLogger(logger *zap.Logger) JWTOption {
	return func(a *JWTAuthenticator) {
		a.logger = logger
	}
}

// NewJWTAuthenticator は認証ゲートを生成する。
// シークレットが空の場合は ErrMissingSigningSecret を返すので、起動時に呼び出して即座に失敗させること。
func NewJWTAuthenticator(secret string, opts ...JWTOption) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	a := &JWTAuthenticator{
		secret: []byte(secret),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// シークレットが空の場合はパニックする。
func JWTAuth(secret string, opts ...JWTOption) gin.HandlerFunc {
	a, err := NewJWTAuthenticator(secret, opts...)
	if err != nil {
		panic(err)
	}
	return a.Middleware()
}

// Middleware は認証ゲートをGinミドルウェアとして返す。
//
// Authorizationヘッダーが無ければ403、トークンの検証に失敗すれば401で中断する。
// 検証に成功した場合はクレームをGinコンテキストとリクエストのコンテキストに設定して次へ進む。
func (a *JWTAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgNoToken})
			return
		}

		if len(a.secret) == 0 {
			panic(ErrMissingSigningSecret)
		}

		claims, err := a.Verify(extractToken(authHeader))
		if err != nil {
			a.logger.Debug("トークンの検証に失敗",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgInvalidToken})
			return
		}

		c.Set(ginKeyClaims, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Header(headerKeyUserID, claims.Subject)
		c.Next()
	}
}

// Verify はトークンの署名・有効期限・必須クレームを検証し、復元したクレームを返す。
func (a *JWTAuthenticator) Verify(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	if tokenString == "" {
		return nil, errors.New("トークンが空です")
	}

	now := a.now
	if now == nil {
		now = time.Now
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods(validMethods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンが無効です: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	if claims.Subject == "" {
		return nil, errors.New("sub クレームがありません")
	}
	return claims, nil
}

// extractToken はAuthorizationヘッダーの値を空白で区切った2番目の要素を返す。
// スキーム名は検証しない。空白を含まない場合は空文字列を返す。
func extractToken(authHeader string) string {
	parts := strings.Split(authHeader, " ")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// SignJWT はクレームをHS256で署名したトークンを返す。
// ログインフローは持たないため、運用ツールとテストから利用する。
func SignJWT(secret string, claims *Claims) (string, error) {
	if secret == "" {
		return "", ErrMissingSigningSecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}
