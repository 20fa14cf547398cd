// カタログサービスのエントリポイント。
// 商品カタログの公開APIと、JWT認証ゲートで保護されたユーザーAPIを提供する。
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/storefront/internal/catalog"
	"github.com/nao1215/storefront/internal/catalog/store"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "設定ファイルのパス（省略時は環境変数のみ）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	// 署名用シークレットが無い状態ではリスナーを開かない
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("カタログサービスが異常終了しました", zap.Error(err))
		os.Exit(1)
	}
	zl.Info("カタログサービスを停止しました")
}

// run はドキュメントストアを開き、ctx がキャンセルされるまでHTTPサーバーを動かす。
func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, zl.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			zl.Warn("ドキュメントストアのクローズに失敗", zap.Error(err))
		}
	}()

	server, err := catalog.NewServer(cfg, st, zl)
	if err != nil {
		return err
	}

	zl.Info("カタログサービスを起動します",
		zap.String("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
	)
	return server.Run(ctx)
}
