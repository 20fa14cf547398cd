package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/storefront/internal/catalog/store"
)

// productRequest は商品の登録・更新リクエストのJSON構造。
type productRequest struct {
	// Name は商品名。
	Name string `json:"name" binding:"required"`
	// Description は商品の説明。
	Description string `json:"description"`
	// Price は価格。
	Price float64 `json:"price" binding:"gte=0"`
	// ImageURL は商品画像のURL。
	ImageURL string `json:"image_url" binding:"omitempty,url"`
	// Category はカテゴリ。
	Category string `json:"category"`
}

// productResponse は商品のJSONレスポンス構造。
type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Category    string  `json:"category"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (r productRequest) toInput() store.ProductInput {
	return store.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
		Category:    r.Category,
	}
}

// toProductResponse はドキュメントをJSONレスポンスに変換する。
func toProductResponse(p store.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListProducts は商品一覧の取得を処理するハンドラを返す。
func (s *Server) handleListProducts() gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := s.store.ListProducts(c.Request.Context(), c.Query("category"))
		if err != nil {
			s.internalError(c, "商品一覧の取得に失敗", err)
			return
		}

		responses := make([]productResponse, 0, len(products))
		for _, p := range products {
			responses = append(responses, toProductResponse(p))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleGetProduct は商品詳細の取得を処理するハンドラを返す。
func (s *Server) handleGetProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.store.GetProduct(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		if err != nil {
			s.internalError(c, "商品の取得に失敗", err)
			return
		}
		c.JSON(http.StatusOK, toProductResponse(p))
	}
}

// handleCreateProduct は商品の登録を処理するハンドラを返す。
func (s *Server) handleCreateProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}

		p, err := s.store.CreateProduct(c.Request.Context(), req.toInput())
		if err != nil {
			s.internalError(c, "商品の作成に失敗", err)
			return
		}
		c.JSON(http.StatusCreated, toProductResponse(p))
	}
}

// handleUpdateProduct は商品の更新を処理するハンドラを返す。
func (s *Server) handleUpdateProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}

		p, err := s.store.UpdateProduct(c.Request.Context(), c.Param("id"), req.toInput())
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		if err != nil {
			s.internalError(c, "商品の更新に失敗", err)
			return
		}
		c.JSON(http.StatusOK, toProductResponse(p))
	}
}

// handleDeleteProduct は商品の削除を処理するハンドラを返す。
func (s *Server) handleDeleteProduct() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.store.DeleteProduct(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		if err != nil {
			s.internalError(c, "商品の削除に失敗", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// msgInvalidRequest はリクエストボディが不正な場合の応答メッセージ。
const msgInvalidRequest = "Invalid request"

// badRequest はバリデーションエラーの詳細をログにのみ残し、固定メッセージで400を返す。
func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("リクエストボディが不正", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
}

// internalError はエラーをログに記録し、詳細を含めずに500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
