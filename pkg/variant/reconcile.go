package variant

import (
	"fmt"
	"strings"
)

// ReconcileStatus reports how a reconciliation ended
type ReconcileStatus string

const (
	ReconcileStatusOK                ReconcileStatus = "ok"
	ReconcileStatusDuplicateRejected ReconcileStatus = "duplicate_rejected"
)

// ReconcileResult is the reshaped identifier list
// 調整後の識別子リスト
type ReconcileResult struct {
	Identifiers []string        `json:"identifiers"`
	Status      ReconcileStatus `json:"status"`
	// TrackingDisabled is set when the target quantity forced tracking off.
	TrackingDisabled bool `json:"tracking_disabled"`
}

// DefaultMaxTrackedQuantity caps the number of unit slots a tracked variant may hold
// 個体追跡できる数量の既定上限
const DefaultMaxTrackedQuantity int64 = 100_000

// Reconcile resizes a child identifier list to match the target quantity
// 子識別子リストを目標数量に合わせて伸縮する
//
// Growing appends blank placeholders. Shrinking drops blank placeholders first,
// scanning from the end, and only then drops filled identifiers from the end.
// A list whose filled entries repeat is returned untouched with
// ErrDuplicateRejected. The input slice is never modified.
// Targets above DefaultMaxTrackedQuantity are rejected with ErrInvalidQuantity.
func Reconcile(current []string, targetQuantity int64, trackingEnabled bool) (ReconcileResult, error) {
	return ReconcileWithLimit(current, targetQuantity, trackingEnabled, DefaultMaxTrackedQuantity)
}

// ReconcileWithLimit is Reconcile with a caller supplied upper bound on the target.
// A non-positive maxQuantity means DefaultMaxTrackedQuantity.
func ReconcileWithLimit(current []string, targetQuantity int64, trackingEnabled bool, maxQuantity int64) (ReconcileResult, error) {
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxTrackedQuantity
	}
	if !trackingEnabled {
		return ReconcileResult{Identifiers: []string{}, Status: ReconcileStatusOK}, nil
	}
	if targetQuantity < 0 {
		return ReconcileResult{Identifiers: copyList(current), Status: ReconcileStatusOK},
			NewValidationError("target_quantity", "目標数量は0以上である必要があります", fmt.Sprintf("%d", targetQuantity), ErrInvalidQuantity)
	}
	if targetQuantity > maxQuantity {
		return ReconcileResult{Identifiers: copyList(current), Status: ReconcileStatusOK},
			NewValidationError("target_quantity",
				fmt.Sprintf("個体追跡できる数量は%d以下です", maxQuantity),
				fmt.Sprintf("%d", targetQuantity), ErrInvalidQuantity)
	}
	// 在庫0の場合は追跡を強制的に無効化
	if targetQuantity == 0 {
		return ReconcileResult{Identifiers: []string{}, Status: ReconcileStatusOK, TrackingDisabled: true}, nil
	}

	if dup, ok := firstDuplicate(current); ok {
		return ReconcileResult{Identifiers: copyList(current), Status: ReconcileStatusDuplicateRejected},
			NewIdentifierError(dup, "", ErrDuplicateRejected)
	}

	n := int64(len(current))
	switch {
	case targetQuantity > n:
		out := make([]string, 0, targetQuantity)
		out = append(out, current...)
		for i := n; i < targetQuantity; i++ {
			out = append(out, "")
		}
		return ReconcileResult{Identifiers: out, Status: ReconcileStatusOK}, nil

	case targetQuantity < n:
		return ReconcileResult{Identifiers: shrink(current, int(n-targetQuantity)), Status: ReconcileStatusOK}, nil
	}

	return ReconcileResult{Identifiers: copyList(current), Status: ReconcileStatusOK}, nil
}

// shrink removes drop entries, blanks first (last blank first), then from the end
func shrink(list []string, drop int) []string {
	removed := make([]bool, len(list))
	for i := len(list) - 1; i >= 0 && drop > 0; i-- {
		if strings.TrimSpace(list[i]) == "" {
			removed[i] = true
			drop--
		}
	}
	for i := len(list) - 1; i >= 0 && drop > 0; i-- {
		if !removed[i] {
			removed[i] = true
			drop--
		}
	}

	out := make([]string, 0, len(list))
	for i, id := range list {
		if !removed[i] {
			out = append(out, id)
		}
	}
	return out
}

func copyList(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
