package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/storefront/internal/catalog/store"
	"github.com/nao1215/storefront/pkg/middleware"
)

// addFavoriteRequest はお気に入り追加リクエストのJSON構造。
type addFavoriteRequest struct {
	// ProductID は追加する商品のID。
	ProductID string `json:"product_id" binding:"required"`
}

// favoriteResponse はお気に入りのJSONレスポンス構造。
type favoriteResponse struct {
	Product productResponse `json:"product"`
	AddedAt string          `json:"added_at"`
}

func toFavoriteResponse(f store.Favorite) favoriteResponse {
	return favoriteResponse{
		Product: toProductResponse(f.Product),
		AddedAt: f.AddedAt.Format(time.RFC3339),
	}
}

// handleMe は認証済みユーザーのクレームをそのまま返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			// 認証ゲートの後ろでしか登録しないので到達しない。
			s.internalError(c, "クレームが設定されていません", errors.New("claims missing"))
			return
		}
		c.JSON(http.StatusOK, claims)
	}
}

// handleListFavorites はお気に入り一覧の取得を処理するハンドラを返す。
func (s *Server) handleListFavorites() gin.HandlerFunc {
	return func(c *gin.Context) {
		favorites, err := s.store.ListFavorites(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.internalError(c, "お気に入り一覧の取得に失敗", err)
			return
		}

		responses := make([]favoriteResponse, 0, len(favorites))
		for _, f := range favorites {
			responses = append(responses, toFavoriteResponse(f))
		}
		c.JSON(http.StatusOK, responses)
	}
}

// handleAddFavorite はお気に入りの追加を処理するハンドラを返す。
func (s *Server) handleAddFavorite() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addFavoriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err)
			return
		}

		f, err := s.store.AddFavorite(c.Request.Context(), middleware.GetUserID(c), req.ProductID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		case errors.Is(err, store.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "Product already in favorites"})
			return
		case err != nil:
			s.internalError(c, "お気に入りの追加に失敗", err)
			return
		}
		c.JSON(http.StatusCreated, toFavoriteResponse(f))
	}
}

// handleRemoveFavorite はお気に入りの削除を処理するハンドラを返す。
func (s *Server) handleRemoveFavorite() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.store.RemoveFavorite(c.Request.Context(), middleware.GetUserID(c), c.Param("product_id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Favorite not found"})
			return
		}
		if err != nil {
			s.internalError(c, "お気に入りの削除に失敗", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
