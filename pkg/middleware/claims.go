package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims は検証済みトークンから復元した呼び出し元の識別情報を表す。
// sub と exp は必須で、登録済みクレーム以外のフィールドは Extra に保持する。
type Claims struct {
	jwt.RegisteredClaims
	// Extra は登録済みクレーム以外の任意フィールド。
	Extra map[string]any `json:"-"`
}

// registeredClaimNames はRFC 7519で定義された登録済みクレーム名。
var registeredClaimNames = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti"}

// MarshalJSON は登録済みクレームと Extra を1つのJSONオブジェクトに平坦化する。
// Extra に登録済みクレーム名のキーがあっても出力しない。登録済みクレームが空の場合も同様。
func (c Claims) MarshalJSON() ([]byte, error) {
	registered, err := json.Marshal(c.RegisteredClaims)
	if err != nil {
		return nil, fmt.Errorf("登録済みクレームのシリアライズに失敗: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(registered, &fields); err != nil {
		return nil, fmt.Errorf("登録済みクレームの展開に失敗: %w", err)
	}

	out := make(map[string]any, len(c.Extra)+len(fields))
	for k, v := range c.Extra {
		if slices.Contains(registeredClaimNames, k) {
			continue
		}
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON は登録済みクレームを復元し、残りのフィールドを Extra に格納する。
// 数値は json.Number のまま保持し、2^53 を超える整数も桁を落とさない。
func (c *Claims) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.RegisteredClaims); err != nil {
		return err
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	for _, name := range registeredClaimNames {
		delete(raw, name)
	}
	c.Extra = nil
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// contextKey はコンテキストキーの型。
type contextKey struct{}

// ginKeyClaims はGinコンテキストにクレームを格納するキー。
const ginKeyClaims = "claims"

// WithClaims はクレームを設定したコンテキストを返す。
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext はコンテキストからクレームを取得する。
// 認証を通過していないリクエストでは nil を返す。
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// GetClaims はGinコンテキストからクレームを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(ginKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// GetUserID はGinコンテキストからユーザーID（sub クレーム）を取得する。
func GetUserID(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
