package variant

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds prometheus collectors for stock operations
// 在庫操作のPrometheusメトリクス
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	adjustments      *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	identifiersAdded prometheus.Counter
	lowStock         prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg
// メトリクスを作成して登録
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "variant_stock",
			Name:      "adjustments_total",
			Help:      "Committed stock adjustments by type and reason.",
		}, []string{"type", "reason"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "variant_stock",
			Name:      "rejections_total",
			Help:      "Rejected operations by error code.",
		}, []string{"operation", "code"}),
		identifiersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "variant_stock",
			Name:      "identifiers_added_total",
			Help:      "Unit identifiers attached through stock-in.",
		}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "variant_stock",
			Name:      "low_stock_total",
			Help:      "Adjustments that left a variant at or below its minimum.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.adjustments, m.rejections, m.identifiersAdded, m.lowStock)
	}
	return m
}

func (m *Metrics) observeAdjustment(intent AdjustmentIntent, added int) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(string(intent.Type), string(intent.Reason)).Inc()
	if added > 0 {
		m.identifiersAdded.Add(float64(added))
	}
}

func (m *Metrics) observeRejection(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(operation, ErrorCode(err)).Inc()
}

func (m *Metrics) observeLowStock() {
	if m == nil {
		return
	}
	m.lowStock.Inc()
}

// ErrorCode maps an error to a stable machine-readable code
// エラーを機械可読なコードに変換
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyIdentifier):
		return "EmptyIdentifier"
	case errors.Is(err, ErrTooShort):
		return "TooShort"
	case errors.Is(err, ErrDuplicateInParent):
		return "DuplicateInParent"
	case errors.Is(err, ErrDuplicateGlobal):
		return "DuplicateGlobal"
	case errors.Is(err, ErrDuplicateRejected):
		return "DuplicateRejected"
	case errors.Is(err, ErrInvalidQuantity):
		return "InvalidQuantity"
	case errors.Is(err, ErrReasonRequired):
		return "ReasonRequired"
	case errors.Is(err, ErrInvalidReason):
		return "InvalidReason"
	case errors.Is(err, ErrInvalidAdjustmentType):
		return "InvalidAdjustmentType"
	case errors.Is(err, ErrIdentifierCountMismatch):
		return "IdentifierCountMismatch"
	case errors.Is(err, ErrTrackingDisabled):
		return "TrackingDisabled"
	case errors.Is(err, ErrVariantNotFound):
		return "VariantNotFound"
	case errors.Is(err, ErrDuplicateVariant):
		return "DuplicateVariant"
	case errors.Is(err, ErrVersionMismatch):
		return "VersionMismatch"
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Validation"
	}
	var se *StorageError
	if errors.As(err, &se) {
		return "Storage"
	}
	return "Unknown"
}
