package variant

import (
	"context"
)

// StockEngine defines the stock operations exposed to callers
// 呼び出し側に公開する在庫操作のインターフェース
type StockEngine interface {
	// 在庫調整 - Stock adjustment
	AdjustStock(ctx context.Context, variantID string, intent AdjustmentIntent) (*AdjustmentResult, error)
	ExecuteBatch(ctx context.Context, adjustments []BatchAdjustment) (*BatchResult, error)

	// 個体識別子 - Unit identifiers
	ValidateIdentifier(ctx context.Context, variantID, identifier string) (string, error)
	UpdateChildIdentifiers(ctx context.Context, variantID string, identifiers []string) (*Variant, error)
	SetTracking(ctx context.Context, variantID string, enabled bool) (*Variant, error)

	// 照会 - Inquiry
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	GetProductSummary(ctx context.Context, productID string, excludeChildUnits bool) (*ProductSummary, error)
	GetHistory(ctx context.Context, variantID string, limit int) ([]StockMovement, error)
}

// VariantManager defines variant authoring operations
// バリアント作成・管理のインターフェース
type VariantManager interface {
	CreateVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	ListVariants(ctx context.Context, productID string) ([]Variant, error)
}

// Storage defines the persistence collaborator
// データ永続化層のインターフェースを定義
type Storage interface {
	// Transaction management
	// fn receives a Storage bound to the transaction; returning an error rolls back.
	WithinTransaction(ctx context.Context, fn func(tx Storage) error) error

	// Variant operations
	CreateVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	SaveVariant(ctx context.Context, v *Variant) error
	ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error)

	// Movement log
	AppendMovement(ctx context.Context, m *StockMovement) error
	GetMovementHistory(ctx context.Context, variantID string, limit int) ([]StockMovement, error)

	// Identifier lookup across every variant in the system
	IdentifierExists(ctx context.Context, identifier string) (bool, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
