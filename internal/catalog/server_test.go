package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/storefront/internal/catalog/store"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "catalog-test-secret"

// setupTestServer はインメモリSQLiteでテスト用のカタログサーバーを構築する。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(t.Context(), store.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)", nil)
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0"},
		Auth:   config.AuthConfig{JWTSecret: testSecret},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	s, err := NewServer(cfg, st, nil)
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	return s
}

// issueToken はテスト用のトークンを署名するヘルパー関数。
func issueToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()

	token, err := middleware.SignJWT(testSecret, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Extra: map[string]any{"email": subject + "@example.com"},
	})
	if err != nil {
		t.Fatalf("SignJWT()でエラーが発生: %v", err)
	}
	return token
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
// token が空でなければ Authorization ヘッダーを付ける。
func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decode はレスポンスボディを指定の型にデシリアライズする。
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// createProduct はAPI経由で商品を登録するヘルパー関数。
func createProduct(t *testing.T, s *Server, name, category string) productResponse {
	t.Helper()

	w := doRequest(s, http.MethodPost, "/api/products", "", gin.H{
		"name":        name,
		"description": name + "の説明",
		"price":       980,
		"image_url":   "https://example.com/" + name + ".png",
		"category":    category,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("商品登録のステータスコード = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	return decode[productResponse](t, w)
}

// TestNewServer はサーバー生成時の検証を確認する。
func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("署名用シークレットが無い場合エラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := NewServer(&config.Config{}, nil, nil)
		if !errors.Is(err, middleware.ErrMissingSigningSecret) {
			t.Errorf("NewServer()のエラー = %v, want %v", err, middleware.ErrMissingSigningSecret)
		}
	})
}

// TestRoot はルートとヘルスチェックを検証する。
func TestRoot(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)

	t.Run("ルートで稼働メッセージが返ること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s, http.MethodGet, "/", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Body.String() != "API is working" {
			t.Errorf("ボディ = %q, want %q", w.Body.String(), "API is working")
		}
	})

	t.Run("ヘルスチェックが正常に返ること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		body := decode[map[string]string](t, w)
		if body["status"] != "ok" {
			t.Errorf("status = %q, want %q", body["status"], "ok")
		}
	})
}

// TestProductHandlers は商品APIを検証する。
func TestProductHandlers(t *testing.T) {
	t.Parallel()

	t.Run("商品を登録して取得できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		created := createProduct(t, s, "kettle", "kitchen")

		w := doRequest(s, http.MethodGet, "/api/products/"+created.ID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		got := decode[productResponse](t, w)
		if got != created {
			t.Errorf("商品 = %+v, want %+v", got, created)
		}
		if got.Price != 980 || got.Category != "kitchen" {
			t.Errorf("価格またはカテゴリが一致しない: %+v", got)
		}
	})

	t.Run("認証なしで商品一覧を取得しカテゴリで絞り込めること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		createProduct(t, s, "pan", "kitchen")
		createProduct(t, s, "desk", "furniture")

		w := doRequest(s, http.MethodGet, "/api/products", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if all := decode[[]productResponse](t, w); len(all) != 2 {
			t.Errorf("件数 = %d, want 2", len(all))
		}

		w = doRequest(s, http.MethodGet, "/api/products?category=furniture", "", nil)
		filtered := decode[[]productResponse](t, w)
		if len(filtered) != 1 || filtered[0].Name != "desk" {
			t.Errorf("絞り込み結果 = %+v", filtered)
		}
	})

	t.Run("商品が無い場合は空配列が返ること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		w := doRequest(s, http.MethodGet, "/api/products", "", nil)
		if w.Body.String() != "[]" {
			t.Errorf("ボディ = %s, want []", w.Body.String())
		}
	})

	t.Run("不正なリクエストボディで400が返ること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		tests := []struct {
			name string
			body any
		}{
			{name: "名前なし", body: gin.H{"price": 100}},
			{name: "負の価格", body: gin.H{"name": "x", "price": -1}},
			{name: "不正なURL", body: gin.H{"name": "x", "image_url": "not a url"}},
		}
		for _, tt := range tests {
			w := doRequest(s, http.MethodPost, "/api/products", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: ステータスコード = %d, want %d", tt.name, w.Code, http.StatusBadRequest)
			}
			// バリデータの出力（構造体のフィールド名など）を応答に含めない
			if w.Body.String() != `{"error":"Invalid request"}` {
				t.Errorf("%s: ボディ = %s", tt.name, w.Body.String())
			}
		}
	})

	t.Run("商品を更新できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		created := createProduct(t, s, "sofa", "furniture")

		w := doRequest(s, http.MethodPut, "/api/products/"+created.ID, "", gin.H{"name": "big sofa", "price": 50000, "category": "furniture"})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		updated := decode[productResponse](t, w)
		if updated.Name != "big sofa" || updated.Price != 50000 {
			t.Errorf("更新内容が反映されていない: %+v", updated)
		}
		if updated.CreatedAt != created.CreatedAt {
			t.Errorf("CreatedAt = %q, want %q", updated.CreatedAt, created.CreatedAt)
		}
	})

	t.Run("存在しない商品で404が返ること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		if w := doRequest(s, http.MethodGet, "/api/products/missing", "", nil); w.Code != http.StatusNotFound {
			t.Errorf("GET ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := doRequest(s, http.MethodPut, "/api/products/missing", "", gin.H{"name": "x"}); w.Code != http.StatusNotFound {
			t.Errorf("PUT ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if w := doRequest(s, http.MethodDelete, "/api/products/missing", "", nil); w.Code != http.StatusNotFound {
			t.Errorf("DELETE ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("商品を削除できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		created := createProduct(t, s, "rug", "furniture")

		if w := doRequest(s, http.MethodDelete, "/api/products/"+created.ID, "", nil); w.Code != http.StatusNoContent {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if w := doRequest(s, http.MethodGet, "/api/products/"+created.ID, "", nil); w.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestUserAuthGate は /api/user に対する認証ゲートの応答を検証する。
func TestUserAuthGate(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t)

	t.Run("トークンが無い場合403が返ること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(s, http.MethodGet, "/api/user/me", "", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if w.Body.String() != `{"error":"No token provided"}` {
			t.Errorf("ボディ = %s", w.Body.String())
		}
	})

	t.Run("期限切れのトークンで401が返ること", func(t *testing.T) {
		t.Parallel()

		token := issueToken(t, "u1", time.Now().Add(-1*time.Hour))
		w := doRequest(s, http.MethodGet, "/api/user/me", token, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if w.Body.String() != `{"error":"Invalid token"}` {
			t.Errorf("ボディ = %s", w.Body.String())
		}
	})

	t.Run("有効なトークンでクレームが返ること", func(t *testing.T) {
		t.Parallel()

		exp := time.Now().Add(time.Hour)
		token := issueToken(t, "u1", exp)
		w := doRequest(s, http.MethodGet, "/api/user/me", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		body := decode[map[string]any](t, w)
		if body["sub"] != "u1" {
			t.Errorf("sub = %v, want %q", body["sub"], "u1")
		}
		if body["email"] != "u1@example.com" {
			t.Errorf("email = %v, want %q", body["email"], "u1@example.com")
		}
		if got, ok := body["exp"].(float64); !ok || int64(got) != exp.Unix() {
			t.Errorf("exp = %v, want %d", body["exp"], exp.Unix())
		}
	})

	t.Run("保護ルートへのプリフライトは認証ゲートに拒否されず204になること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodOptions, "/api/user/favorites", nil)
		req.Header.Set("Origin", "https://shop.example.net")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "authorization")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
		}
	})

	t.Run("商品APIは認証なしで利用できること", func(t *testing.T) {
		t.Parallel()

		if w := doRequest(s, http.MethodGet, "/api/products", "", nil); w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestFavoriteHandlers はお気に入りAPIを検証する。
func TestFavoriteHandlers(t *testing.T) {
	t.Parallel()

	t.Run("お気に入りの追加・一覧・削除ができること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		p := createProduct(t, s, "tea", "food")
		token := issueToken(t, "u1", time.Now().Add(time.Hour))

		w := doRequest(s, http.MethodPost, "/api/user/favorites", token, gin.H{"product_id": p.ID})
		if w.Code != http.StatusCreated {
			t.Fatalf("追加のステータスコード = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
		}
		added := decode[favoriteResponse](t, w)
		if added.Product.ID != p.ID {
			t.Errorf("追加した商品ID = %q, want %q", added.Product.ID, p.ID)
		}

		w = doRequest(s, http.MethodGet, "/api/user/favorites", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("一覧のステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if list := decode[[]favoriteResponse](t, w); len(list) != 1 || list[0].Product.ID != p.ID {
			t.Errorf("一覧 = %+v", list)
		}

		w = doRequest(s, http.MethodDelete, "/api/user/favorites/"+p.ID, token, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("削除のステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}

		w = doRequest(s, http.MethodDelete, "/api/user/favorites/"+p.ID, token, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("再削除のステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("お気に入りはユーザーごとに分離されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		p := createProduct(t, s, "coffee", "food")
		alice := issueToken(t, "alice", time.Now().Add(time.Hour))
		bob := issueToken(t, "bob", time.Now().Add(time.Hour))

		if w := doRequest(s, http.MethodPost, "/api/user/favorites", alice, gin.H{"product_id": p.ID}); w.Code != http.StatusCreated {
			t.Fatalf("追加のステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}

		w := doRequest(s, http.MethodGet, "/api/user/favorites", bob, nil)
		if list := decode[[]favoriteResponse](t, w); len(list) != 0 {
			t.Errorf("他ユーザーのお気に入りが見えている: %+v", list)
		}
	})

	t.Run("重複追加で409、存在しない商品で404、不正なボディで400が返ること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		p := createProduct(t, s, "juice", "food")
		token := issueToken(t, "u1", time.Now().Add(time.Hour))

		if w := doRequest(s, http.MethodPost, "/api/user/favorites", token, gin.H{"product_id": p.ID}); w.Code != http.StatusCreated {
			t.Fatalf("追加のステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if w := doRequest(s, http.MethodPost, "/api/user/favorites", token, gin.H{"product_id": p.ID}); w.Code != http.StatusConflict {
			t.Errorf("重複追加のステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
		if w := doRequest(s, http.MethodPost, "/api/user/favorites", token, gin.H{"product_id": "missing"}); w.Code != http.StatusNotFound {
			t.Errorf("存在しない商品のステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		w := doRequest(s, http.MethodPost, "/api/user/favorites", token, gin.H{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("不正なボディのステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if strings.Contains(w.Body.String(), "ProductID") {
			t.Errorf("バリデーションの詳細が応答に含まれている: %s", w.Body.String())
		}
	})

	t.Run("トークンが無い場合ハンドラに到達せず403が返ること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t)
		p := createProduct(t, s, "water", "food")

		if w := doRequest(s, http.MethodPost, "/api/user/favorites", "", gin.H{"product_id": p.ID}); w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		token := issueToken(t, "u1", time.Now().Add(time.Hour))
		w := doRequest(s, http.MethodGet, "/api/user/favorites", token, nil)
		if list := decode[[]favoriteResponse](t, w); len(list) != 0 {
			t.Errorf("拒否されたリクエストでお気に入りが追加されている: %+v", list)
		}
	})
}
