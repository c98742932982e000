package variant

import (
	"strings"

	"github.com/samber/lo"
)

// DefaultLowStockThreshold is the available quantity at or below which a product is low on stock
const DefaultLowStockThreshold int64 = 10

// childUnitMarkers are name fragments that identify a per-unit pseudo-variant.
var childUnitMarkers = []string{"imei:", "serial:", "s/n:"}

// StockSummary is the rollup of a product's variants
// 商品バリアントの在庫集計
type StockSummary struct {
	TotalStock         int64       `json:"total_stock"`
	ReservedStock      int64       `json:"reserved_stock"`
	AvailableStock     int64       `json:"available_stock"`
	Status             StockStatus `json:"status"`
	Threshold          int64       `json:"threshold"`
	VariantCount       int         `json:"variant_count"`
	ExcludedChildUnits int         `json:"excluded_child_units"`
}

// IsChildUnit reports whether a variant is a per-unit child record of another variant
// バリアントが親バリアントの個体子レコードかを判定
//
// Upstream data is tagged inconsistently, so any of the parent reference, the
// imei_child type or a unit-identifier name prefix is enough.
func IsChildUnit(v Variant) bool {
	if v.ParentVariantID != nil && strings.TrimSpace(*v.ParentVariantID) != "" {
		return true
	}
	if v.VariantType == VariantTypeIMEIChild {
		return true
	}
	name := strings.ToLower(v.Name)
	return lo.SomeBy(childUnitMarkers, func(marker string) bool {
		return strings.Contains(name, marker)
	})
}

// Aggregate computes total, reserved and available stock with the default threshold
// デフォルト閾値で合計・予約・利用可能在庫を集計
func Aggregate(variants []Variant, excludeChildUnits bool) StockSummary {
	return AggregateWithThreshold(variants, excludeChildUnits, DefaultLowStockThreshold)
}

// AggregateWithThreshold is Aggregate with a caller supplied default low-stock threshold.
// When any counted variant carries a positive MinQuantity the sum of those minimums wins.
// Child-unit exclusion applies to total stock only; reserved stock covers every variant.
func AggregateWithThreshold(variants []Variant, excludeChildUnits bool, defaultThreshold int64) StockSummary {
	counted := variants
	if excludeChildUnits {
		counted = lo.Reject(variants, func(v Variant, _ int) bool {
			return IsChildUnit(v)
		})
	}

	summary := StockSummary{
		TotalStock:         lo.SumBy(counted, func(v Variant) int64 { return v.Quantity }),
		ReservedStock:      lo.SumBy(variants, func(v Variant) int64 { return v.ReservedQuantity }),
		VariantCount:       len(counted),
		ExcludedChildUnits: len(variants) - len(counted),
		Threshold:          defaultThreshold,
	}
	summary.AvailableStock = summary.TotalStock - summary.ReservedStock

	withMin := lo.Filter(counted, func(v Variant, _ int) bool { return v.MinQuantity != nil && *v.MinQuantity > 0 })
	if len(withMin) > 0 {
		summary.Threshold = lo.SumBy(withMin, func(v Variant) int64 { return *v.MinQuantity })
	}

	summary.Status = classify(summary.AvailableStock, summary.Threshold)
	return summary
}

func classify(available, threshold int64) StockStatus {
	switch {
	case available <= 0:
		return StockStatusOutOfStock
	case available <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}
