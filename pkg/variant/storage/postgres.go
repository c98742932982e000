package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PoolConfig holds connection pool settings
// 接続プール設定
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgreSQLStorage implements the variant.Storage interface using PostgreSQL
// PostgreSQLを使用したStorageインターフェースの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	q      querier
	tx     *sql.Tx
	logger *zap.Logger
}

var _ variant.Storage = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(dsn string, pool PoolConfig, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return NewPostgreSQLStorageFromDB(db, logger), nil
}

// NewPostgreSQLStorageFromDB wraps an already opened database
func NewPostgreSQLStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgreSQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{db: db, q: db, logger: logger}
}

// WithinTransaction runs fn inside a database transaction
// トランザクション内でfnを実行（エラー時はロールバック）
func (s *PostgreSQLStorage) WithinTransaction(ctx context.Context, fn func(tx variant.Storage) error) error {
	// 既にトランザクション内の場合はそのまま実行
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}

	txStorage := &PostgreSQLStorage{db: s.db, q: tx, tx: tx, logger: s.logger}
	if err := fn(txStorage); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("ロールバックに失敗しました", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
	return nil
}

const variantColumns = `id, product_id, name, sku, quantity, reserved_quantity, min_quantity, max_quantity,
		cost_price, selling_price, is_parent, tracking_enabled, identifier_kind, child_identifiers,
		parent_variant_id, variant_type, version, created_at, updated_at, updated_by`

// CreateVariant creates a new variant record
// 新しいバリアントを作成
func (s *PostgreSQLStorage) CreateVariant(ctx context.Context, v *variant.Variant) error {
	query := `
		INSERT INTO variants (` + variantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.q.ExecContext(ctx, query,
		v.ID,
		v.ProductID,
		v.Name,
		v.SKU,
		v.Quantity,
		v.ReservedQuantity,
		v.MinQuantity,
		v.MaxQuantity,
		v.CostPrice,
		v.SellingPrice,
		v.IsParent,
		v.TrackingEnabled,
		string(v.IdentifierKind),
		pq.Array(nonNil(v.ChildIdentifiers)),
		v.ParentVariantID,
		string(v.VariantType),
		v.Version,
		v.CreatedAt,
		v.UpdatedAt,
		v.UpdatedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return variant.ErrDuplicateVariant
		}
		return fmt.Errorf("バリアント作成に失敗しました: %w", err)
	}
	return nil
}

// GetVariant retrieves a variant by ID
// IDでバリアントを取得
func (s *PostgreSQLStorage) GetVariant(ctx context.Context, variantID string) (*variant.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE id = $1`

	v, err := scanVariant(s.q.QueryRowContext(ctx, query, variantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, variant.ErrVariantNotFound
		}
		return nil, fmt.Errorf("バリアント取得に失敗しました: %w", err)
	}
	return v, nil
}

// SaveVariant updates an existing variant using optimistic locking
// 楽観的ロックで既存バリアントを更新
//
// v.Version must already hold the new version; the row is only written when
// the stored version is v.Version-1.
func (s *PostgreSQLStorage) SaveVariant(ctx context.Context, v *variant.Variant) error {
	query := `
		UPDATE variants
		SET name = $2, sku = $3, quantity = $4, reserved_quantity = $5, min_quantity = $6, max_quantity = $7,
			cost_price = $8, selling_price = $9, is_parent = $10, tracking_enabled = $11, identifier_kind = $12,
			child_identifiers = $13, parent_variant_id = $14, variant_type = $15, version = $16,
			updated_at = $17, updated_by = $18
		WHERE id = $1 AND version = $19`

	result, err := s.q.ExecContext(ctx, query,
		v.ID,
		v.Name,
		v.SKU,
		v.Quantity,
		v.ReservedQuantity,
		v.MinQuantity,
		v.MaxQuantity,
		v.CostPrice,
		v.SellingPrice,
		v.IsParent,
		v.TrackingEnabled,
		string(v.IdentifierKind),
		pq.Array(nonNil(v.ChildIdentifiers)),
		v.ParentVariantID,
		string(v.VariantType),
		v.Version,
		v.UpdatedAt,
		v.UpdatedBy,
		v.Version-1, // 楽観的ロックのための前バージョン
	)
	if err != nil {
		return fmt.Errorf("バリアント更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return variant.ErrVersionMismatch
	}
	return nil
}

// ListVariantsByProduct retrieves every variant of a product
// 商品のすべてのバリアントを取得
func (s *PostgreSQLStorage) ListVariantsByProduct(ctx context.Context, productID string) ([]variant.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE product_id = $1 ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("バリアント一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	variants := make([]variant.Variant, 0)
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("バリアントスキャンに失敗しました: %w", err)
		}
		variants = append(variants, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("バリアント一覧取得に失敗しました: %w", err)
	}
	return variants, nil
}

// AppendMovement records a stock movement
// 在庫移動を記録
func (s *PostgreSQLStorage) AppendMovement(ctx context.Context, m *variant.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, variant_id, type, quantity_delta, previous_quantity, new_quantity,
			reason, notes, identifiers_added, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.q.ExecContext(ctx, query,
		m.ID,
		m.VariantID,
		string(m.Type),
		m.QuantityDelta,
		m.PreviousQuantity,
		m.NewQuantity,
		string(m.Reason),
		m.Notes,
		pq.Array(nonNil(m.IdentifiersAdded)),
		m.CreatedAt,
		m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("在庫移動記録に失敗しました: %w", err)
	}
	return nil
}

// GetMovementHistory retrieves the newest movements of a variant
// バリアントの在庫移動履歴を取得
func (s *PostgreSQLStorage) GetMovementHistory(ctx context.Context, variantID string, limit int) ([]variant.StockMovement, error) {
	query := `
		SELECT id, variant_id, type, quantity_delta, previous_quantity, new_quantity,
			reason, notes, identifiers_added, created_at, created_by
		FROM stock_movements
		WHERE variant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.q.QueryContext(ctx, query, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("在庫移動履歴取得に失敗しました: %w", err)
	}
	defer rows.Close()

	movements := make([]variant.StockMovement, 0)
	for rows.Next() {
		var m variant.StockMovement
		var added pq.StringArray
		err := rows.Scan(
			&m.ID,
			&m.VariantID,
			&m.Type,
			&m.QuantityDelta,
			&m.PreviousQuantity,
			&m.NewQuantity,
			&m.Reason,
			&m.Notes,
			&added,
			&m.CreatedAt,
			&m.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("在庫移動スキャンに失敗しました: %w", err)
		}
		m.IdentifiersAdded = nonNil(added)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("在庫移動履歴取得に失敗しました: %w", err)
	}
	return movements, nil
}

// IdentifierExists reports whether any variant already holds the identifier
// 識別子がいずれかのバリアントに登録済みか確認
func (s *PostgreSQLStorage) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM variants WHERE $1 = ANY(child_identifiers))`

	var exists bool
	if err := s.q.QueryRowContext(ctx, query, identifier).Scan(&exists); err != nil {
		return false, fmt.Errorf("識別子存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Ping checks database connectivity
// データベース接続確認
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (*variant.Variant, error) {
	v := &variant.Variant{}
	var children pq.StringArray
	err := row.Scan(
		&v.ID,
		&v.ProductID,
		&v.Name,
		&v.SKU,
		&v.Quantity,
		&v.ReservedQuantity,
		&v.MinQuantity,
		&v.MaxQuantity,
		&v.CostPrice,
		&v.SellingPrice,
		&v.IsParent,
		&v.TrackingEnabled,
		&v.IdentifierKind,
		&children,
		&v.ParentVariantID,
		&v.VariantType,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	v.ChildIdentifiers = nonNil(children)
	return v, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
