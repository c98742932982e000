package variant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ValidateIdentifier checks an identifier against the variant's product and, for IMEIs, the whole system
// 識別子を同一商品内および（IMEIの場合）システム全体に対して検証
func (m *Manager) ValidateIdentifier(ctx context.Context, variantID, identifier string) (string, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return "", err
	}

	v, err := m.loadVariant(ctx, variantID)
	if err != nil {
		return "", err
	}

	inParent, err := m.productIdentifiers(ctx, v, false)
	if err != nil {
		return "", err
	}

	global := NewIdentifierSet()
	if id := strings.TrimSpace(identifier); id != "" && v.Kind() == IdentifierKindIMEI {
		global, err = m.existingGlobally(ctx, []string{id})
		if err != nil {
			return "", err
		}
	}

	id, err := ValidateIdentifier(identifier, inParent, global, v.Kind())
	if err != nil {
		m.metrics.observeRejection("validate_identifier", err)
		return "", err
	}
	return id, nil
}

// UpdateChildIdentifiers replaces the identifier list of a tracked variant without changing its quantity
// 追跡中バリアントの識別子リストを置き換え（数量は変更しない）
//
// The list must hold one slot per unit. Blank slots are allowed; every filled
// slot is validated against the rest of the product and the rest of the list.
func (m *Manager) UpdateChildIdentifiers(ctx context.Context, variantID string, identifiers []string) (*Variant, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return nil, err
	}

	unlock := m.lockVariant(variantID)
	defer unlock()

	v, err := m.loadVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !v.TrackingEnabled {
		return nil, NewBusinessRuleError("tracking_disabled", "個体追跡を有効にしてから識別子を入力してください", variantID, ErrTrackingDisabled)
	}
	if int64(len(identifiers)) != v.Quantity {
		return nil, NewBusinessRuleError("identifier_count",
			"識別子の数が在庫数量と一致しません",
			fmt.Sprintf("数量: %d, 識別子: %d", v.Quantity, len(identifiers)),
			ErrIdentifierCountMismatch)
	}

	siblings, err := m.productIdentifiers(ctx, v, true)
	if err != nil {
		return nil, err
	}
	own := NewIdentifierSet(v.ChildIdentifiers...)

	seen := NewIdentifierSet()
	parent := LookupFunc(func(id string) bool {
		return seen.Contains(id) || siblings.Contains(id)
	})

	next := v.Clone()
	next.ChildIdentifiers = make([]string, len(identifiers))
	for i, raw := range identifiers {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		// 自身が既に保持しているIMEIはグローバル重複とみなさない
		global := NewIdentifierSet()
		if trimmed := strings.TrimSpace(raw); v.Kind() == IdentifierKindIMEI && !own.Contains(trimmed) {
			global, err = m.existingGlobally(ctx, []string{trimmed})
			if err != nil {
				return nil, err
			}
		}

		id, err := ValidateIdentifier(raw, parent, global, v.Kind())
		if err != nil {
			m.metrics.observeRejection("update_identifiers", err)
			return nil, err
		}
		seen.Add(id)
		next.ChildIdentifiers[i] = id
	}
	next.IsParent = true

	if err := m.save(ctx, v, next); err != nil {
		return nil, err
	}

	m.logger.Info("識別子リスト更新完了",
		zap.String("variant_id", variantID),
		zap.Int("filled", len(next.FilledIdentifiers())),
		zap.Int64("quantity", next.Quantity),
	)
	return next, nil
}

// SetTracking turns per-unit tracking on or off
// 個体追跡の有効・無効を切り替え
//
// Enabling pads the list with blank slots up to the quantity. A variant with
// no stock stays untracked. Disabling clears every identifier.
func (m *Manager) SetTracking(ctx context.Context, variantID string, enabled bool) (*Variant, error) {
	if err := ValidateVariantID(variantID); err != nil {
		return nil, err
	}

	unlock := m.lockVariant(variantID)
	defer unlock()

	v, err := m.loadVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v.TrackingEnabled == enabled {
		return v, nil
	}

	next := v.Clone()
	if !enabled {
		next.DisableTracking()
	} else {
		res, err := ReconcileWithLimit(next.ChildIdentifiers, next.Quantity, true, m.config.MaxTrackedQuantity)
		if err != nil {
			return nil, err
		}
		if res.TrackingDisabled {
			m.logger.Info("在庫0のため個体追跡を有効化できません", zap.String("variant_id", variantID))
			return v, nil
		}
		next.TrackingEnabled = true
		next.IsParent = true
		next.ChildIdentifiers = res.Identifiers
		if next.VariantType == "" || next.VariantType == VariantTypeStandard {
			next.VariantType = VariantTypeParent
		}
	}

	if err := m.save(ctx, v, next); err != nil {
		return nil, err
	}

	m.logger.Info("個体追跡設定を変更しました",
		zap.String("variant_id", variantID),
		zap.Bool("tracking_enabled", next.TrackingEnabled),
	)
	return next, nil
}

// save persists next as the successor of prev without a movement record
func (m *Manager) save(ctx context.Context, prev, next *Variant) error {
	next.Version = prev.Version + 1
	next.UpdatedAt = now()
	next.UpdatedBy = m.getUserFromContext(ctx)

	if err := ValidateVariant(next); err != nil {
		return err
	}
	if err := m.storage.SaveVariant(ctx, next); err != nil {
		return NewStorageError("save_variant", "バリアント更新に失敗しました", err)
	}
	return nil
}
