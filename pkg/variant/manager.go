package variant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager implements the StockEngine interface on top of a Storage
// StockEngineインターフェースの実装
type Manager struct {
	storage Storage     // ストレージ層
	metrics *Metrics    // メトリクス
	logger  *zap.Logger // ログ
	config  *Config     // 設定

	locks sync.Map // variantID -> *sync.Mutex
}

// すべてのインターフェースを実装することを明示
var (
	_ StockEngine    = (*Manager)(nil)
	_ VariantManager = (*Manager)(nil)
)

// Config holds configuration for the stock manager
// 在庫マネージャーの設定を保持
type Config struct {
	LowStockThreshold     int64          `yaml:"low_stock_threshold"`     // 低在庫閾値
	DefaultIdentifierKind IdentifierKind `yaml:"default_identifier_kind"` // 既定の識別子種別
	HistoryLimit          int            `yaml:"history_limit"`           // 履歴取得件数
	MaxBatchSize          int            `yaml:"max_batch_size"`          // バッチ最大件数
	MaxTrackedQuantity    int64          `yaml:"max_tracked_quantity"`    // 個体追跡できる数量の上限
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		LowStockThreshold:     DefaultLowStockThreshold,
		DefaultIdentifierKind: IdentifierKindSerial,
		HistoryLimit:          100,
		MaxBatchSize:          500,
		MaxTrackedQuantity:    DefaultMaxTrackedQuantity,
	}
}

// ProductSummary is the stock and value rollup of a product
// 商品単位の在庫・評価額集計
type ProductSummary struct {
	ProductID string       `json:"product_id"`
	Stock     StockSummary `json:"stock"`
	Valuation Valuation    `json:"valuation"`
	Variants  []Variant    `json:"variants"`
}

type userKey struct{}

// WithUser attaches the acting user to the context
// コンテキストに操作ユーザーを設定
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// NewManager creates a new stock manager
// 新しい在庫マネージャーを作成
func NewManager(storage Storage, metrics *Metrics, logger *zap.Logger, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		storage: storage,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}
}

// CreateVariant stores a new variant with zero stock and no identifiers
// 在庫0・識別子なしで新しいバリアントを作成
func (m *Manager) CreateVariant(ctx context.Context, v *Variant) error {
	if v == nil {
		return NewValidationError("variant", "バリアントが指定されていません", "nil", nil)
	}
	if v.ID == "" {
		v.ID = NewVariantID()
	}
	if v.IdentifierKind == "" {
		v.IdentifierKind = m.config.DefaultIdentifierKind
	}
	if v.VariantType == "" {
		v.VariantType = VariantTypeStandard
	}

	now := time.Now()
	v.Quantity = 0
	v.ReservedQuantity = 0
	v.TrackingEnabled = false
	v.ChildIdentifiers = []string{}
	v.Version = 1
	v.CreatedAt = now
	v.UpdatedAt = now
	v.UpdatedBy = m.getUserFromContext(ctx)

	if err := ValidateVariant(v); err != nil {
		return err
	}

	if err := m.storage.CreateVariant(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicateVariant) {
			return err
		}
		return NewStorageError("create_variant", "バリアント作成に失敗しました", err)
	}

	m.logger.Info("バリアント作成完了",
		zap.String("variant_id", v.ID),
		zap.String("product_id", v.ProductID),
		zap.String("identifier_kind", string(v.IdentifierKind)),
	)
	return nil
}

// GetVariant gets a variant by ID
// IDでバリアントを取得
func (m *Manager) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return nil, err
	}
	return m.loadVariant(ctx, variantID)
}

// ListVariants lists every variant of a product
// 商品のすべてのバリアントを取得
func (m *Manager) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}
	variants, err := m.storage.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, NewStorageError("list_variants", "バリアント一覧取得に失敗しました", err)
	}
	return variants, nil
}

// AdjustStock applies a stock adjustment and persists the variant and its movement together
// 在庫調整を適用し、バリアントと移動記録を同一トランザクションで保存
func (m *Manager) AdjustStock(ctx context.Context, variantID string, intent AdjustmentIntent) (*AdjustmentResult, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return nil, err
	}

	unlock := m.lockVariant(variantID)
	defer unlock()

	v, err := m.loadVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	scope, err := m.identifierScope(ctx, v, intent)
	if err != nil {
		return nil, err
	}

	res, err := ApplyWithLimit(v, intent, scope, m.config.MaxTrackedQuantity)
	if err != nil {
		m.metrics.observeRejection("adjust", err)
		m.logger.Warn("在庫調整を拒否しました",
			zap.String("variant_id", variantID),
			zap.String("type", string(intent.Type)),
			zap.Int64("amount", intent.Amount),
			zap.String("code", ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	user := m.getUserFromContext(ctx)
	res.Variant.Version = v.Version + 1
	res.Variant.UpdatedAt = res.Movement.CreatedAt
	res.Variant.UpdatedBy = user
	res.Movement.CreatedBy = user

	err = m.storage.WithinTransaction(ctx, func(tx Storage) error {
		if err := tx.SaveVariant(ctx, res.Variant); err != nil {
			return err
		}
		return tx.AppendMovement(ctx, res.Movement)
	})
	if err != nil {
		m.metrics.observeRejection("adjust", err)
		m.logger.Error("在庫調整の保存に失敗しました", zap.String("variant_id", variantID), zap.Error(err))
		return nil, NewStorageError("commit_adjustment", "在庫調整の保存に失敗しました", err)
	}

	m.metrics.observeAdjustment(intent, len(res.Movement.IdentifiersAdded))

	// 低在庫チェック
	if res.Variant.Level() == StockLevelLow {
		m.metrics.observeLowStock()
		m.logger.Warn("在庫が最低在庫数を下回っています",
			zap.String("variant_id", variantID),
			zap.Int64("quantity", res.Variant.Quantity),
		)
	}

	m.logger.Info("在庫調整完了",
		zap.String("variant_id", variantID),
		zap.String("movement_id", res.Movement.ID),
		zap.String("type", string(res.Movement.Type)),
		zap.String("reason", string(res.Movement.Reason)),
		zap.Int64("old_quantity", res.Movement.PreviousQuantity),
		zap.Int64("new_quantity", res.Movement.NewQuantity),
		zap.Int("identifiers_added", len(res.Movement.IdentifiersAdded)),
	)

	return res, nil
}

// GetProductSummary aggregates stock and value over a product's variants
// 商品のバリアントを集計
func (m *Manager) GetProductSummary(ctx context.Context, productID string, excludeChildUnits bool) (*ProductSummary, error) {
	variants, err := m.ListVariants(ctx, productID)
	if err != nil {
		return nil, err
	}

	summary := &ProductSummary{
		ProductID: productID,
		Stock:     AggregateWithThreshold(variants, excludeChildUnits, m.config.LowStockThreshold),
		Valuation: Valuate(variants, excludeChildUnits),
		Variants:  variants,
	}

	m.logger.Debug("商品在庫集計完了",
		zap.String("product_id", productID),
		zap.Int64("total_stock", summary.Stock.TotalStock),
		zap.Int64("available_stock", summary.Stock.AvailableStock),
		zap.String("status", string(summary.Stock.Status)),
	)
	return summary, nil
}

// GetHistory gets the movement history of a variant, newest first
// バリアントの在庫移動履歴を取得
func (m *Manager) GetHistory(ctx context.Context, variantID string, limit int) ([]StockMovement, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.config.HistoryLimit
	}

	movements, err := m.storage.GetMovementHistory(ctx, variantID, limit)
	if err != nil {
		return nil, NewStorageError("get_movement_history", "在庫移動履歴取得に失敗しました", err)
	}
	return movements, nil
}

// ヘルパーメソッド

// loadVariant reads a variant and maps storage failures
func (m *Manager) loadVariant(ctx context.Context, variantID string) (*Variant, error) {
	v, err := m.storage.GetVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, ErrVariantNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, NewStorageError("get_variant", "バリアント取得に失敗しました", err)
	}
	return v, nil
}

// identifierScope builds the collision sets for a stock-in carrying identifiers
func (m *Manager) identifierScope(ctx context.Context, v *Variant, intent AdjustmentIntent) (IdentifierScope, error) {
	var supplied []string
	for _, id := range intent.Identifiers {
		if s := strings.TrimSpace(id); s != "" {
			supplied = append(supplied, s)
		}
	}
	if intent.Type != AdjustmentTypeIn || len(supplied) == 0 {
		return IdentifierScope{}, nil
	}

	inParent, err := m.productIdentifiers(ctx, v, false)
	if err != nil {
		return IdentifierScope{}, err
	}

	global := NewIdentifierSet()
	if v.Kind() == IdentifierKindIMEI {
		global, err = m.existingGlobally(ctx, supplied)
		if err != nil {
			return IdentifierScope{}, err
		}
	}

	return IdentifierScope{InParent: inParent, Global: global}, nil
}

// productIdentifiers collects the identifiers used by the variants of v's product
func (m *Manager) productIdentifiers(ctx context.Context, v *Variant, excludeSelf bool) (IdentifierSet, error) {
	set := NewIdentifierSet()
	if !excludeSelf {
		for _, id := range v.ChildIdentifiers {
			set.Add(id)
		}
	}
	if v.ProductID == "" {
		return set, nil
	}

	siblings, err := m.storage.ListVariantsByProduct(ctx, v.ProductID)
	if err != nil {
		return nil, NewStorageError("list_variants", "同一商品のバリアント取得に失敗しました", err)
	}
	for _, s := range siblings {
		if s.ID == v.ID {
			continue
		}
		for _, id := range s.ChildIdentifiers {
			set.Add(id)
		}
	}
	return set, nil
}

// existingGlobally asks storage which of the identifiers are already taken
func (m *Manager) existingGlobally(ctx context.Context, identifiers []string) (IdentifierSet, error) {
	set := NewIdentifierSet()
	for _, id := range identifiers {
		exists, err := m.storage.IdentifierExists(ctx, id)
		if err != nil {
			return nil, NewStorageError("identifier_exists", "IMEI存在確認に失敗しました", err)
		}
		if exists {
			set.Add(id)
		}
	}
	return set, nil
}

// lockVariant serialises writers of one variant inside this process
func (m *Manager) lockVariant(variantID string) func() {
	l, _ := m.locks.LoadOrStore(variantID, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// getUserFromContext extracts user ID from context
// コンテキストからユーザーIDを取得
func (m *Manager) getUserFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userKey{}).(string); ok && userID != "" {
		return userID
	}
	return "system"
}
