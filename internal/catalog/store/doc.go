// Package store はカタログAPIのドキュメントストアを提供する。
//
// 商品（products）とユーザーごとのお気に入り（favorites）を database/sql 経由で永続化する。
// ドライバは SQLite（modernc.org/sqlite）と PostgreSQL（pgx）を選択でき、
// スキーマは起動時に埋め込みのマイグレーションで適用する。
package store
