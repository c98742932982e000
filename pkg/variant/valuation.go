package variant

import (
	"github.com/shopspring/decimal"
)

// Valuation is the monetary value of counted stock
// 在庫評価額
type Valuation struct {
	CostValue   decimal.Decimal `json:"cost_value"`   // 原価ベースの在庫価値
	RetailValue decimal.Decimal `json:"retail_value"` // 売価ベースの在庫価値
	Margin      decimal.Decimal `json:"margin"`       // 見込み粗利
}

// Valuate prices the stock of the given variants at cost and at selling price
// 原価と売価で在庫を評価
//
// Child units are skipped when excludeChildUnits is set, matching Aggregate.
func Valuate(variants []Variant, excludeChildUnits bool) Valuation {
	cost := decimal.Zero
	retail := decimal.Zero
	for _, v := range variants {
		if excludeChildUnits && IsChildUnit(v) {
			continue
		}
		if v.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(v.Quantity)
		cost = cost.Add(v.CostPrice.Mul(qty))
		retail = retail.Add(v.SellingPrice.Mul(qty))
	}

	return Valuation{
		CostValue:   cost,
		RetailValue: retail,
		Margin:      retail.Sub(cost),
	}
}
