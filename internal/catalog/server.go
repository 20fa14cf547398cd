package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/storefront/internal/catalog/store"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/pkg/middleware"
)

// Server はカタログAPIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はドキュメントストア。
	store *store.Store
	// auth は /api/user を保護する認証ゲート。
	auth *middleware.JWTAuthenticator
	// logger は構造化ロガー。
	logger *zap.Logger
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
}

// NewServer は新しいカタログサーバーを生成する。
// cfg は Validate 済みであること。署名用シークレットが無い場合はエラーを返す。
func NewServer(cfg *config.Config, st *store.Store, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	auth, err := middleware.NewJWTAuthenticator(cfg.Auth.JWTSecret,
		middleware.WithLeeway(cfg.Auth.Leeway),
		middleware.WithLogger(logger.Named("auth")),
	)
	if err != nil {
		return nil, fmt.Errorf("認証ゲートの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	s := &Server{
		router:          router,
		port:            cfg.Server.Port,
		store:           st,
		auth:            auth,
		logger:          logger,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーターを http.Handler として返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("HTTPサーバーを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "API is working")
	})
	s.router.GET("/health", s.handleHealth())

	products := s.router.Group("/api/products")
	{
		products.GET("", s.handleListProducts())
		products.GET("/:id", s.handleGetProduct())
		products.POST("", s.handleCreateProduct())
		products.PUT("/:id", s.handleUpdateProduct())
		products.DELETE("/:id", s.handleDeleteProduct())
	}

	// 認証必須のエンドポイント
	user := s.router.Group("/api/user")
	user.Use(s.auth.Middleware())
	{
		user.GET("/me", s.handleMe())
		user.GET("/favorites", s.handleListFavorites())
		user.POST("/favorites", s.handleAddFavorite())
		user.DELETE("/favorites/:product_id", s.handleRemoveFavorite())
	}
}

// handleHealth はドキュメントストアへの疎通を含めたヘルスチェックを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.logger.Error("ドキュメントストアへの疎通に失敗", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "catalog"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "catalog"})
	}
}
