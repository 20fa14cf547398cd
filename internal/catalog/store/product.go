package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product は商品ドキュメント。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	ImageURL    string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductInput は商品の作成・更新時に指定する項目。
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	ImageURL    string
	Category    string
}

const productColumns = "id, name, description, price, image_url, category, created_at, updated_at"

// CreateProduct は商品を作成し、採番したIDを含む商品を返す。
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	id := uuid.NewString()
	now := s.timestamp()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO products (id, name, description, price, image_url, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, in.Name, in.Description, in.Price, in.ImageURL, in.Category, now, now,
	)
	if err != nil {
		return Product{}, fmt.Errorf("商品の作成に失敗: %w", err)
	}
	return s.GetProduct(ctx, id)
}

// GetProduct はIDを指定して商品を取得する。存在しない場合は ErrNotFound を返す。
func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("商品の取得に失敗: %w", err)
	}
	return p, nil
}

// ListProducts は商品を新しい順に返す。category が空でなければそのカテゴリに絞り込む。
func (s *Store) ListProducts(ctx context.Context, category string) ([]Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	return products, nil
}

// UpdateProduct は商品の全項目を置き換える。存在しない場合は ErrNotFound を返す。
func (s *Store) UpdateProduct(ctx context.Context, id string, in ProductInput) (Product, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE products
		SET name = ?, description = ?, price = ?, image_url = ?, category = ?, updated_at = ?
		WHERE id = ?`),
		in.Name, in.Description, in.Price, in.ImageURL, in.Category, s.timestamp(), id,
	)
	if err != nil {
		return Product{}, fmt.Errorf("商品の更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return Product{}, err
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct は商品を削除する。関連するお気に入りも削除する。
// 存在しない場合は ErrNotFound を返す。
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// 外部キー制約が無効なSQLite接続でもお気に入りが残らないよう明示的に消す。
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM favorites WHERE product_id = ?"), id); err != nil {
		return fmt.Errorf("お気に入りの削除に失敗: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM products WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                    Product
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.Category, &createdAt, &updatedAt); err != nil {
		return Product{}, err
	}

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Product{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Product{}, err
	}
	return p, nil
}

// expectAffected は更新件数が0件なら ErrNotFound を返す。
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
