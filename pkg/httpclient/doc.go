// Package httpclient はカタログAPIを呼び出すHTTPクライアントを提供する。
//
// 運用ツールから公開API・認証済みAPIを呼び出す際に使用する。
// Bearerトークンの付与と、エラーレスポンス {"error": "..."} の解釈を統一する。
package httpclient
