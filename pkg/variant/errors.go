package variant

import (
	"errors"
	"fmt"
)

// Common variant errors
// 共通のバリアントエラー定義

var (
	// ErrEmptyIdentifier is returned when an identifier is blank after trimming
	// 識別子が空の場合のエラー
	ErrEmptyIdentifier = errors.New("識別子が空です")

	// ErrTooShort is returned when an IMEI-class identifier is shorter than MinIMEILength
	// IMEIが短すぎる場合のエラー
	ErrTooShort = errors.New("IMEIは10文字以上である必要があります")

	// ErrDuplicateInParent is returned when the identifier already exists in the same product
	// 同一商品内で識別子が重複している場合のエラー
	ErrDuplicateInParent = errors.New("識別子は同じ商品内に既に存在します")

	// ErrDuplicateGlobal is returned when an IMEI already exists anywhere in the system
	// IMEIがシステム全体で重複している場合のエラー
	ErrDuplicateGlobal = errors.New("IMEIはシステム内に既に存在します")

	// ErrDuplicateRejected is returned when reconciliation would keep duplicate identifiers
	// 調整結果に重複識別子が含まれる場合のエラー
	ErrDuplicateRejected = errors.New("重複した識別子のため調整を拒否しました")

	// ErrInvalidQuantity is returned for non-positive amounts or negative targets
	// 数量が無効な場合のエラー
	ErrInvalidQuantity = errors.New("数量は正の値である必要があります")

	// ErrReasonRequired is returned when no reason is given for an adjustment
	// 調整理由が指定されていない場合のエラー
	ErrReasonRequired = errors.New("調整理由を選択してください")

	// ErrInvalidReason is returned when the reason is not one of Reasons
	// 調整理由が不正な場合のエラー
	ErrInvalidReason = errors.New("無効な調整理由です")

	// ErrInvalidAdjustmentType is returned for an unknown adjustment type
	// 未知の調整タイプの場合のエラー
	ErrInvalidAdjustmentType = errors.New("無効な調整タイプです")

	// ErrIdentifierCountMismatch is returned when identifiers do not match the quantity
	// 識別子の数が数量と一致しない場合のエラー
	ErrIdentifierCountMismatch = errors.New("識別子の数が数量と一致しません")

	// ErrTrackingDisabled is returned when editing identifiers of an untracked variant
	// 個体追跡が無効なバリアントの識別子を編集しようとした場合のエラー
	ErrTrackingDisabled = errors.New("個体追跡が無効です")

	// ErrVariantNotFound is returned when a variant doesn't exist
	// バリアントが存在しない場合のエラー
	ErrVariantNotFound = errors.New("バリアントが見つかりません")

	// ErrDuplicateVariant is returned when creating a variant that already exists
	// 既に存在するバリアントを作成しようとした場合のエラー
	ErrDuplicateVariant = errors.New("バリアントは既に存在します")

	// ErrVersionMismatch is returned when optimistic locking fails
	// 楽観的ロック失敗時のエラー
	ErrVersionMismatch = errors.New("バージョンが一致しません。他のユーザーによって更新されています")
)

// IdentifierError reports which identifier failed validation and why
// どの識別子がなぜ検証に失敗したかを表現
type IdentifierError struct {
	Identifier string         `json:"identifier"`
	Kind       IdentifierKind `json:"kind"`
	Err        error          `json:"-"`
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("識別子エラー [%s:%s]: %v", e.Kind, e.Identifier, e.Err)
}

func (e *IdentifierError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
	Err     error  `json:"-"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BusinessRuleError represents a business rule violation
// ビジネスルール違反を表現
type BusinessRuleError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Context string `json:"context"`
	Err     error  `json:"-"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("ビジネスルール違反 [%s]: %s (コンテキスト: %s)", e.Rule, e.Message, e.Context)
}

func (e *BusinessRuleError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Cause     error  `json:"cause"`
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewIdentifierError creates a new identifier error wrapping one of the identifier sentinels
func NewIdentifierError(identifier string, kind IdentifierKind, err error) *IdentifierError {
	return &IdentifierError{
		Identifier: identifier,
		Kind:       kind,
		Err:        err,
	}
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Err:     err,
	}
}

// NewBusinessRuleError creates a new business rule error
// 新しいビジネスルールエラーを作成
func NewBusinessRuleError(rule, message, context string, err error) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
		Err:     err,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
