// Package variant provides stock reconciliation for product variants tracked by unit identifiers
package variant

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant represents a sellable unit of a product or spare part
// 商品またはスペアパーツの販売単位（バリアント）を表現
type Variant struct {
	ID               string          `json:"id" db:"id"`                               // バリアントID
	ProductID        string          `json:"product_id" db:"product_id"`               // 親商品ID
	Name             string          `json:"name" db:"name"`                           // バリアント名
	SKU              string          `json:"sku" db:"sku"`                             // SKU
	Quantity         int64           `json:"quantity" db:"quantity"`                   // 在庫数量
	ReservedQuantity int64           `json:"reserved_quantity" db:"reserved_quantity"` // 予約済み数量
	MinQuantity      *int64          `json:"min_quantity,omitempty" db:"min_quantity"` // 最低在庫数
	MaxQuantity      *int64          `json:"max_quantity,omitempty" db:"max_quantity"` // 最大在庫数
	CostPrice        decimal.Decimal `json:"cost_price" db:"cost_price"`               // 原価
	SellingPrice     decimal.Decimal `json:"selling_price" db:"selling_price"`         // 販売価格
	IsParent         bool            `json:"is_parent" db:"is_parent"`                 // 子識別子を持つか
	TrackingEnabled  bool            `json:"tracking_enabled" db:"tracking_enabled"`   // 個体追跡有効
	IdentifierKind   IdentifierKind  `json:"identifier_kind" db:"identifier_kind"`     // 識別子の種類
	ChildIdentifiers []string        `json:"child_identifiers" db:"child_identifiers"` // IMEI/シリアル番号一覧
	ParentVariantID  *string         `json:"parent_variant_id,omitempty" db:"parent_variant_id"`
	VariantType      VariantType     `json:"variant_type" db:"variant_type"`
	Version          int64           `json:"version" db:"version"` // 楽観的ロック用バージョン
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	UpdatedBy        string          `json:"updated_by" db:"updated_by"`
}

// VariantType tags how a variant row is used
// バリアント行の用途を示すタグ
type VariantType string

const (
	VariantTypeStandard  VariantType = "standard"   // 通常
	VariantTypeParent    VariantType = "parent"     // 親バリアント
	VariantTypeIMEIChild VariantType = "imei_child" // IMEI子レコード
)

// IdentifierKind defines the class of a unit identifier
// 個体識別子の種類を定義
type IdentifierKind string

const (
	IdentifierKindIMEI       IdentifierKind = "imei"        // IMEI
	IdentifierKindSerial     IdentifierKind = "serial"      // シリアル番号
	IdentifierKindPartNumber IdentifierKind = "part_number" // 部品番号
)

// MinIMEILength is the shortest accepted IMEI-class identifier
const MinIMEILength = 10

// AdjustmentType defines the intent of a stock adjustment
// 在庫調整の種類を定義
type AdjustmentType string

const (
	AdjustmentTypeIn  AdjustmentType = "in"  // 入庫
	AdjustmentTypeOut AdjustmentType = "out" // 出庫
	AdjustmentTypeSet AdjustmentType = "set" // 数量指定
)

// MovementType defines the type recorded in the movement log
// 在庫移動記録のタイプを定義
type MovementType string

const (
	MovementTypeIn         MovementType = "in"
	MovementTypeOut        MovementType = "out"
	MovementTypeAdjustment MovementType = "adjustment"
)

// Reason is the business reason attached to an adjustment
// 在庫調整の理由
type Reason string

const (
	ReasonPurchase   Reason = "purchase"   // 仕入
	ReasonSale       Reason = "sale"       // 販売
	ReasonReturn     Reason = "return"     // 返品
	ReasonDamage     Reason = "damage"     // 破損
	ReasonExpiry     Reason = "expiry"     // 期限切れ
	ReasonTheft      Reason = "theft"      // 盗難・紛失
	ReasonAdjustment Reason = "adjustment" // 手動調整
	ReasonTransfer   Reason = "transfer"   // 移動
	ReasonAudit      Reason = "audit"      // 棚卸
	ReasonOther      Reason = "other"      // その他
)

// Reasons lists every accepted adjustment reason in display order
var Reasons = []Reason{
	ReasonPurchase, ReasonSale, ReasonReturn, ReasonDamage, ReasonExpiry,
	ReasonTheft, ReasonAdjustment, ReasonTransfer, ReasonAudit, ReasonOther,
}

// StockStatus is the availability classification of an aggregate
// 集計在庫の状態
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in-stock"
	StockStatusLowStock   StockStatus = "low-stock"
	StockStatusOutOfStock StockStatus = "out-of-stock"
)

// StockLevel is the threshold classification of a single variant
// 単一バリアントの在庫レベル
type StockLevel string

const (
	StockLevelLow    StockLevel = "low"
	StockLevelNormal StockLevel = "normal"
	StockLevelHigh   StockLevel = "high"
)

// StockMovement represents an append-only stock movement record
// 追記専用の在庫移動記録を表現
type StockMovement struct {
	ID               string       `json:"id" db:"id"`
	VariantID        string       `json:"variant_id" db:"variant_id"`
	Type             MovementType `json:"type" db:"type"`
	QuantityDelta    int64        `json:"quantity_delta" db:"quantity_delta"`       // 実際に適用された増減
	PreviousQuantity int64        `json:"previous_quantity" db:"previous_quantity"` // 変更前数量
	NewQuantity      int64        `json:"new_quantity" db:"new_quantity"`           // 変更後数量
	Reason           Reason       `json:"reason" db:"reason"`
	Notes            string       `json:"notes" db:"notes"`
	IdentifiersAdded []string     `json:"identifiers_added" db:"identifiers_added"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	CreatedBy        string       `json:"created_by" db:"created_by"`
}

// AdjustmentIntent describes a requested stock adjustment
// 在庫調整の要求内容
type AdjustmentIntent struct {
	Type        AdjustmentType `json:"type"`
	Amount      int64          `json:"amount"`
	Reason      Reason         `json:"reason"`
	Notes       string         `json:"notes,omitempty"`
	Identifiers []string       `json:"identifiers,omitempty"`
}

// AdjustmentResult holds the outcome of a committed adjustment
// 確定した在庫調整の結果
type AdjustmentResult struct {
	Variant  *Variant       `json:"variant"`
	Movement *StockMovement `json:"movement"`
}

// NewVariantID generates a new variant ID
// 新しいバリアントIDを生成
func NewVariantID() string {
	return uuid.New().String()
}

// NewMovementID generates a new movement ID
// 新しい在庫移動IDを生成
func NewMovementID() string {
	return uuid.New().String()
}

// Kind returns the identifier kind, falling back to serial when unset
func (v *Variant) Kind() IdentifierKind {
	if v.IdentifierKind == "" {
		return IdentifierKindSerial
	}
	return v.IdentifierKind
}

// Available returns quantity minus reserved quantity
// 利用可能数量（総数量 - 予約済み数量）
func (v *Variant) Available() int64 {
	return v.Quantity - v.ReservedQuantity
}

// Level classifies the variant against its own min/max thresholds
// 最低・最大在庫数に対する在庫レベルを判定
func (v *Variant) Level() StockLevel {
	var minQty int64
	if v.MinQuantity != nil {
		minQty = *v.MinQuantity
	}
	if v.Quantity <= minQty {
		return StockLevelLow
	}
	if v.MaxQuantity != nil && *v.MaxQuantity > 0 && v.Quantity >= *v.MaxQuantity {
		return StockLevelHigh
	}
	return StockLevelNormal
}

// FilledIdentifiers returns the non-blank child identifiers in order
func (v *Variant) FilledIdentifiers() []string {
	out := make([]string, 0, len(v.ChildIdentifiers))
	for _, id := range v.ChildIdentifiers {
		if strings.TrimSpace(id) != "" {
			out = append(out, strings.TrimSpace(id))
		}
	}
	return out
}

// DisableTracking turns per-unit tracking off and clears identifiers, leaving quantity as is
// 個体追跡を無効化（数量は変更しない）
func (v *Variant) DisableTracking() {
	v.TrackingEnabled = false
	v.ChildIdentifiers = []string{}
}

// Clone returns a deep copy of the variant
func (v *Variant) Clone() *Variant {
	c := *v
	if v.ChildIdentifiers != nil {
		c.ChildIdentifiers = append([]string(nil), v.ChildIdentifiers...)
	}
	if v.MinQuantity != nil {
		minQty := *v.MinQuantity
		c.MinQuantity = &minQty
	}
	if v.MaxQuantity != nil {
		maxQty := *v.MaxQuantity
		c.MaxQuantity = &maxQty
	}
	if v.ParentVariantID != nil {
		parent := *v.ParentVariantID
		c.ParentVariantID = &parent
	}
	return &c
}
