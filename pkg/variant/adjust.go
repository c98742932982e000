package variant

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// now is swapped in tests
var now = time.Now

// IdentifierScope carries the identifiers a stock-in must not collide with
// 入庫時に重複してはならない識別子の範囲
type IdentifierScope struct {
	// InParent holds every identifier already used by a variant of the same product.
	InParent IdentifierLookup
	// Global answers system-wide existence and is only consulted for IMEIs.
	Global IdentifierLookup
}

// Apply applies a stock adjustment to a variant
// バリアントに在庫調整を適用
//
// The input variant is never modified. On success a new variant and exactly one
// movement record describing the change actually applied are returned.
func Apply(v *Variant, intent AdjustmentIntent, scope IdentifierScope) (*AdjustmentResult, error) {
	return ApplyWithLimit(v, intent, scope, DefaultMaxTrackedQuantity)
}

// ApplyWithLimit is Apply with a caller supplied cap on tracked quantities
func ApplyWithLimit(v *Variant, intent AdjustmentIntent, scope IdentifierScope, maxTracked int64) (*AdjustmentResult, error) {
	if v == nil {
		return nil, NewValidationError("variant", "バリアントが指定されていません", "nil", nil)
	}
	if intent.Amount <= 0 {
		return nil, NewValidationError("amount", "数量は正の値である必要があります", fmt.Sprintf("%d", intent.Amount), ErrInvalidQuantity)
	}
	if err := ValidateReason(intent.Reason); err != nil {
		return nil, err
	}

	next := v.Clone()
	prev := v.Quantity
	var added []string

	switch intent.Type {
	case AdjustmentTypeIn:
		ids, err := acceptIdentifiers(v, intent, scope)
		if err != nil {
			return nil, err
		}
		if intent.Amount > math.MaxInt64-prev {
			return nil, NewValidationError("amount", "在庫数量の上限を超えます", fmt.Sprintf("%d", intent.Amount), ErrInvalidQuantity)
		}
		next.Quantity = prev + intent.Amount
		if len(ids) > 0 {
			added = ids
			next.IsParent = true
			next.TrackingEnabled = true
			if next.VariantType == "" || next.VariantType == VariantTypeStandard {
				next.VariantType = VariantTypeParent
			}
			if v.TrackingEnabled {
				next.ChildIdentifiers = append(next.ChildIdentifiers, ids...)
			} else {
				// 未追跡の既存在庫は空きスロットとして後ろに補完される
				next.ChildIdentifiers = append([]string(nil), ids...)
			}
		}

	case AdjustmentTypeOut:
		next.Quantity = prev - intent.Amount
		if next.Quantity < 0 {
			next.Quantity = 0
		}

	case AdjustmentTypeSet:
		next.Quantity = intent.Amount

	default:
		return nil, NewValidationError("type", "無効な調整タイプです", string(intent.Type), ErrInvalidAdjustmentType)
	}

	if next.TrackingEnabled {
		res, err := ReconcileWithLimit(next.ChildIdentifiers, next.Quantity, true, maxTracked)
		if err != nil {
			return nil, err
		}
		next.ChildIdentifiers = res.Identifiers
		if res.TrackingDisabled {
			next.DisableTracking()
		}
	}

	movement := &StockMovement{
		ID:               NewMovementID(),
		VariantID:        v.ID,
		Type:             movementType(intent.Type),
		QuantityDelta:    next.Quantity - prev,
		PreviousQuantity: prev,
		NewQuantity:      next.Quantity,
		Reason:           intent.Reason,
		Notes:            intent.Notes,
		IdentifiersAdded: added,
		CreatedAt:        now(),
	}
	if movement.Notes == "" {
		movement.Notes = defaultNotes(intent.Type)
	}
	if movement.IdentifiersAdded == nil {
		movement.IdentifiersAdded = []string{}
	}

	return &AdjustmentResult{Variant: next, Movement: movement}, nil
}

// acceptIdentifiers validates stock-in identifiers as one batch.
// Earlier entries of the batch count as existing for later ones.
func acceptIdentifiers(v *Variant, intent AdjustmentIntent, scope IdentifierScope) ([]string, error) {
	var supplied []string
	for _, id := range intent.Identifiers {
		if strings.TrimSpace(id) != "" {
			supplied = append(supplied, id)
		}
	}
	if len(supplied) == 0 {
		return nil, nil
	}
	if int64(len(supplied)) != intent.Amount {
		return nil, NewBusinessRuleError("identifier_count",
			"識別子を入力する場合は各ユニットに1つずつ入力してください",
			fmt.Sprintf("数量: %d, 識別子: %d", intent.Amount, len(supplied)),
			ErrIdentifierCountMismatch)
	}

	inParent := NewIdentifierSet(v.ChildIdentifiers...)
	batch := make(IdentifierSet, len(supplied))
	parent := LookupFunc(func(id string) bool {
		return batch.Contains(id) || inParent.Contains(id) || (scope.InParent != nil && scope.InParent.Contains(id))
	})

	accepted := make([]string, 0, len(supplied))
	for _, raw := range supplied {
		id, err := ValidateIdentifier(raw, parent, scope.Global, v.Kind())
		if err != nil {
			return nil, err
		}
		batch.Add(id)
		accepted = append(accepted, id)
	}
	return accepted, nil
}

func movementType(t AdjustmentType) MovementType {
	switch t {
	case AdjustmentTypeIn:
		return MovementTypeIn
	case AdjustmentTypeOut:
		return MovementTypeOut
	default:
		return MovementTypeAdjustment
	}
}

func defaultNotes(t AdjustmentType) string {
	switch t {
	case AdjustmentTypeIn:
		return "Stock added"
	case AdjustmentTypeOut:
		return "Stock removed"
	default:
		return "Stock set"
	}
}
