package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqlStateForeignKeyViolation はPostgreSQLの外部キー制約違反のSQLSTATE。
const sqlStateForeignKeyViolation = "23503"

// Favorite はユーザーがお気に入り登録した商品。
type Favorite struct {
	UserID  string
	Product Product
	AddedAt time.Time
}

// AddFavorite は商品をユーザーのお気に入りに追加する。
// 商品が存在しない場合は ErrNotFound、登録済みの場合は ErrDuplicate を返す。
// 商品の存在確認と挿入は1文で行い、並行して商品が削除された場合も ErrNotFound になる。
func (s *Store) AddFavorite(ctx context.Context, userID, productID string) (Favorite, error) {
	addedAt := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO favorites (user_id, product_id, added_at)
		SELECT CAST(? AS TEXT), id, CAST(? AS TEXT) FROM products WHERE id = ?
		ON CONFLICT (user_id, product_id) DO NOTHING`),
		userID, addedAt, productID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Favorite{}, ErrNotFound
		}
		return Favorite{}, fmt.Errorf("お気に入りの追加に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Favorite{}, fmt.Errorf("追加件数の取得に失敗: %w", err)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Favorite{}, err
	}
	if n == 0 {
		return Favorite{}, ErrDuplicate
	}

	t, err := parseTime(addedAt)
	if err != nil {
		return Favorite{}, err
	}
	return Favorite{UserID: userID, Product: product, AddedAt: t}, nil
}

// isForeignKeyViolation はドライバのエラーが外部キー制約違反かどうかを返す。
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateForeignKeyViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
		// 拡張リザルトコードが無効な接続では基本コードとメッセージで判定する
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "FOREIGN KEY")
	}
	return false
}

// RemoveFavorite はユーザーのお気に入りから商品を外す。登録されていない場合は ErrNotFound を返す。
func (s *Store) RemoveFavorite(ctx context.Context, userID, productID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM favorites WHERE user_id = ? AND product_id = ?"), userID, productID)
	if err != nil {
		return fmt.Errorf("お気に入りの削除に失敗: %w", err)
	}
	return expectAffected(res)
}

// ListFavorites はユーザーのお気に入りを追加日時の新しい順に返す。
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT p.id, p.name, p.description, p.price, p.image_url, p.category, p.created_at, p.updated_at, f.added_at
		FROM favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id = ?
		ORDER BY f.added_at DESC, p.id`), userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	favorites := []Favorite{}
	for rows.Next() {
		var (
			p                             Product
			createdAt, updatedAt, addedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &createdAt, &updatedAt, &addedAt); err != nil {
			return nil, fmt.Errorf("お気に入りの読み取りに失敗: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		added, err := parseTime(addedAt)
		if err != nil {
			return nil, err
		}
		favorites = append(favorites, Favorite{UserID: userID, Product: p, AddedAt: added})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗: %w", err)
	}
	return favorites, nil
}
