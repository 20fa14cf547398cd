// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンを検証する認証ゲート（JWTAuthenticator）、アクセスログ、
// パニックリカバリ、CORS設定を含む。
//
// 認証ゲートの結果は次の通り。
//   - Authorizationヘッダーなし: 403 {"error":"No token provided"}
//   - トークンの検証に失敗: 401 {"error":"Invalid token"}
//   - 検証に成功: クレームをコンテキストに設定して後続のハンドラへ進む
//
// 署名用シークレットが無い状態はクライアントの誤りではないため、
// NewJWTAuthenticator がエラーを返し、起動処理で検出する。
package middleware
