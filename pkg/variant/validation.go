package variant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateVariantID バリアントIDの形式をバリデーション
func ValidateVariantID(variantID string) error {
	if variantID == "" {
		return NewValidationError("variant_id", "バリアントIDが空です", variantID, nil)
	}
	if len(variantID) > 255 {
		return NewValidationError("variant_id", "バリアントIDが長すぎます", variantID, nil)
	}
	// 英数字、ハイフン、アンダースコアのみ許可
	if !idPattern.MatchString(variantID) {
		return NewValidationError("variant_id", "バリアントIDに無効な文字が含まれています", variantID, nil)
	}
	return nil
}

// ValidateProductID 商品IDの形式をバリデーション
func ValidateProductID(productID string) error {
	if productID == "" {
		return NewValidationError("product_id", "商品IDが空です", productID, nil)
	}
	if len(productID) > 255 {
		return NewValidationError("product_id", "商品IDが長すぎます", productID, nil)
	}
	if !idPattern.MatchString(productID) {
		return NewValidationError("product_id", "商品IDに無効な文字が含まれています", productID, nil)
	}
	return nil
}

// ValidateVariantName バリアント名をバリデーション
func ValidateVariantName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", "バリアント名が空です", name, nil)
	}
	if len(name) > 500 {
		return NewValidationError("name", "バリアント名が長すぎます", name, nil)
	}
	return nil
}

// ValidatePrice 価格をバリデーション
func ValidatePrice(field string, price decimal.Decimal) error {
	if price.IsNegative() {
		return NewValidationError(field, "価格は0以上である必要があります", price.String(), nil)
	}
	return nil
}

// ValidateThresholds 最低・最大在庫数をバリデーション
func ValidateThresholds(minQty, maxQty *int64) error {
	if minQty != nil && *minQty < 0 {
		return NewValidationError("min_quantity", "最低在庫数は0以上である必要があります", fmt.Sprintf("%d", *minQty), nil)
	}
	if maxQty != nil && *maxQty < 0 {
		return NewValidationError("max_quantity", "最大在庫数は0以上である必要があります", fmt.Sprintf("%d", *maxQty), nil)
	}
	return nil
}

// ValidateIdentifierKind 識別子種別をバリデーション
func ValidateIdentifierKind(kind IdentifierKind) error {
	switch kind {
	case IdentifierKindIMEI, IdentifierKindSerial, IdentifierKindPartNumber:
		return nil
	}
	return NewValidationError("identifier_kind", "無効な識別子種別です", string(kind), nil)
}

// ValidateReason 調整理由をバリデーション
func ValidateReason(reason Reason) error {
	if strings.TrimSpace(string(reason)) == "" {
		return ErrReasonRequired
	}
	for _, r := range Reasons {
		if r == reason {
			return nil
		}
	}
	return NewValidationError("reason", "無効な調整理由です", string(reason), ErrInvalidReason)
}

// ValidateAdjustmentType 調整タイプをバリデーション
func ValidateAdjustmentType(t AdjustmentType) error {
	switch t {
	case AdjustmentTypeIn, AdjustmentTypeOut, AdjustmentTypeSet:
		return nil
	}
	return NewValidationError("type", "無効な調整タイプです", string(t), ErrInvalidAdjustmentType)
}

// ValidateVariant バリアント全体をバリデーション
//
// Checks field formats and the quantity and identifier rules, so it is safe to call
// on rows coming back from storage.
func ValidateVariant(v *Variant) error {
	if v == nil {
		return NewValidationError("variant", "バリアントが指定されていません", "nil", nil)
	}

	if err := ValidateVariantID(v.ID); err != nil {
		return err
	}
	if err := ValidateProductID(v.ProductID); err != nil {
		return err
	}
	if err := ValidateVariantName(v.Name); err != nil {
		return err
	}
	if err := ValidatePrice("cost_price", v.CostPrice); err != nil {
		return err
	}
	if err := ValidatePrice("selling_price", v.SellingPrice); err != nil {
		return err
	}
	if err := ValidateThresholds(v.MinQuantity, v.MaxQuantity); err != nil {
		return err
	}
	if v.IdentifierKind != "" {
		if err := ValidateIdentifierKind(v.IdentifierKind); err != nil {
			return err
		}
	}

	if v.Quantity < 0 {
		return NewValidationError("quantity", "負の在庫は許可されていません", fmt.Sprintf("%d", v.Quantity), ErrInvalidQuantity)
	}
	if v.ReservedQuantity < 0 {
		return NewValidationError("reserved_quantity", "予約数量は0以上である必要があります", fmt.Sprintf("%d", v.ReservedQuantity), ErrInvalidQuantity)
	}

	if v.TrackingEnabled && int64(len(v.ChildIdentifiers)) != v.Quantity {
		return NewBusinessRuleError("identifier_count",
			"識別子の数が在庫数量と一致しません",
			fmt.Sprintf("数量: %d, 識別子: %d", v.Quantity, len(v.ChildIdentifiers)),
			ErrIdentifierCountMismatch)
	}
	if !v.TrackingEnabled && len(v.ChildIdentifiers) > 0 {
		return NewBusinessRuleError("tracking_disabled",
			"個体追跡が無効なバリアントに識別子があります",
			fmt.Sprintf("識別子: %d", len(v.ChildIdentifiers)),
			ErrIdentifierCountMismatch)
	}
	if dup, ok := firstDuplicate(v.ChildIdentifiers); ok {
		return NewIdentifierError(dup, v.Kind(), ErrDuplicateRejected)
	}

	return nil
}

// firstDuplicate returns the first repeated non-blank identifier
func firstDuplicate(identifiers []string) (string, bool) {
	seen := make(map[string]struct{}, len(identifiers))
	for _, raw := range identifiers {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
