package variant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchAdjustment is one adjustment inside a batch
// バッチ内の単一在庫調整
type BatchAdjustment struct {
	VariantID string           `json:"variant_id"` // バリアントID
	Intent    AdjustmentIntent `json:"intent"`     // 調整内容
}

// BatchStatus defines the status of a batch
// バッチのステータスを定義
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"   // 処理中
	BatchStatusCompleted BatchStatus = "completed" // 完了
	BatchStatusPartial   BatchStatus = "partial"   // 一部失敗
	BatchStatusFailed    BatchStatus = "failed"    // 失敗
)

// BatchItemError represents an error in batch processing
// バッチ処理でのエラーを表現
type BatchItemError struct {
	Index     int    `json:"index"`      // 操作インデックス
	VariantID string `json:"variant_id"` // バリアントID
	Code      string `json:"code"`       // エラーコード
	Error     string `json:"error"`      // エラーメッセージ
}

// BatchResult represents the outcome of a batch of adjustments
// バッチ在庫調整の結果を表現
type BatchResult struct {
	ID           string              `json:"id"`            // バッチID
	Status       BatchStatus         `json:"status"`        // ステータス
	SuccessCount int                 `json:"success_count"` // 成功数
	FailureCount int                 `json:"failure_count"` // 失敗数
	Results      []*AdjustmentResult `json:"results"`       // 成功した調整結果
	Errors       []BatchItemError    `json:"errors"`        // エラーリスト
	CreatedAt    time.Time           `json:"created_at"`    // 作成日時
	CompletedAt  *time.Time          `json:"completed_at"`  // 完了日時
}

// NewBatchID generates a new batch ID
// 新しいバッチIDを生成
func NewBatchID() string {
	return uuid.New().String()
}

// ExecuteBatch applies adjustments one by one; a failed item does not stop the rest
// 在庫調整を順番に実行（失敗した操作があっても残りは継続）
func (m *Manager) ExecuteBatch(ctx context.Context, adjustments []BatchAdjustment) (*BatchResult, error) {
	if len(adjustments) == 0 {
		return nil, NewValidationError("adjustments", "調整が指定されていません", "0", nil)
	}
	if m.config.MaxBatchSize > 0 && len(adjustments) > m.config.MaxBatchSize {
		return nil, NewValidationError("adjustments", "バッチの件数が上限を超えています",
			fmt.Sprintf("%d", len(adjustments)), nil)
	}

	batch := &BatchResult{
		ID:        NewBatchID(),
		Status:    BatchStatusPending,
		Results:   make([]*AdjustmentResult, 0, len(adjustments)),
		Errors:    make([]BatchItemError, 0),
		CreatedAt: time.Now(),
	}

	for i, adj := range adjustments {
		if err := ctx.Err(); err != nil {
			// 確定済みの調整は結果に残す
			m.finishBatch(batch, true)
			m.logger.Warn("バッチ在庫調整が中断されました",
				zap.String("batch_id", batch.ID),
				zap.Int("processed", i),
				zap.Int("total", len(adjustments)),
				zap.Error(err),
			)
			return batch, err
		}

		res, err := m.AdjustStock(ctx, adj.VariantID, adj.Intent)
		if err != nil {
			batch.Errors = append(batch.Errors, BatchItemError{
				Index:     i,
				VariantID: adj.VariantID,
				Code:      ErrorCode(err),
				Error:     err.Error(),
			})
			batch.FailureCount++
			continue
		}
		batch.Results = append(batch.Results, res)
		batch.SuccessCount++
	}

	m.finishBatch(batch, false)

	m.logger.Info("バッチ在庫調整完了",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(batch.Status)),
		zap.Int("success_count", batch.SuccessCount),
		zap.Int("failure_count", batch.FailureCount),
	)

	return batch, nil
}

// finishBatch stamps the completion time and derives the batch status
func (m *Manager) finishBatch(batch *BatchResult, interrupted bool) {
	completed := time.Now()
	batch.CompletedAt = &completed

	switch {
	case batch.SuccessCount == 0 && (interrupted || batch.FailureCount > 0):
		batch.Status = BatchStatusFailed
	case batch.FailureCount == 0 && !interrupted:
		batch.Status = BatchStatusCompleted
	default:
		batch.Status = BatchStatusPartial
	}
}
