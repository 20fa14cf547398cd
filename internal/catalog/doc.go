// Package catalog はカタログAPIサーバーのHTTP層を提供する。
//
// 商品（/api/products）は誰でも参照・登録でき、ユーザー情報とお気に入り
// （/api/user）は認証ゲートを通過したリクエストのみが利用できる。
//
// 主なエンドポイント:
//   - GET    /api/products            商品一覧（?category= で絞り込み）
//   - GET    /api/products/:id        商品詳細
//   - POST   /api/products            商品登録
//   - PUT    /api/products/:id        商品更新
//   - DELETE /api/products/:id        商品削除
//   - GET    /api/user/me             認証済みユーザーのクレーム
//   - GET    /api/user/favorites      お気に入り一覧
//   - POST   /api/user/favorites      お気に入り追加
//   - DELETE /api/user/favorites/:product_id  お気に入り削除
package catalog
