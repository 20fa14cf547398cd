package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sqlに "pgx" ドライバを登録する
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // database/sqlに "sqlite" ドライバを登録する

	"github.com/nao1215/storefront/pkg/migration"
)

// ドライバ名。database/sqlに登録された名前と一致する。
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

var (
	// ErrNotFound は対象のドキュメントが存在しないことを表す。
	ErrNotFound = errors.New("store: ドキュメントが見つかりません")
	// ErrDuplicate は同じキーのドキュメントが既に存在することを表す。
	ErrDuplicate = errors.New("store: ドキュメントが既に存在します")
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// timeLayout は日時の保存形式。固定長なので文字列順が時刻順になる。
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store はドキュメントストアへのアクセスを提供する。*sql.DB と同様に並行利用できる。
type Store struct {
	// db はデータベース接続プール。
	db *sql.DB
	// driver はドライバ名。プレースホルダの書き換えに使う。
	driver string
	// now は現在時刻を返す関数。
	now func() time.Time
}

// Open はデータベースに接続し、マイグレーションを適用したStoreを返す。
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPgx:
	default:
		return nil, fmt.Errorf("未対応のドライバです: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if driver == DriverSQLite {
		// SQLiteは書き込みを直列化する。":memory:" でも接続ごとに別DBにならないよう1本に絞る。
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind は "?" プレースホルダをドライバに合わせて書き換える。
func (s *Store) rebind(query string) string {
	if s.driver != DriverPgx {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp は現在時刻を保存形式の文字列で返す。
func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時のパースに失敗: %w", err)
	}
	return t, nil
}
