package variant

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockStorage はテスト用のStorageモック
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) WithinTransaction(ctx context.Context, fn func(tx Storage) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *MockStorage) CreateVariant(ctx context.Context, v *Variant) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockStorage) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// 呼び出しごとに複製を返す
	return args.Get(0).(*Variant).Clone(), args.Error(1)
}

func (m *MockStorage) SaveVariant(ctx context.Context, v *Variant) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockStorage) ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Variant), args.Error(1)
}

func (m *MockStorage) AppendMovement(ctx context.Context, mv *StockMovement) error {
	args := m.Called(ctx, mv)
	return args.Error(0)
}

func (m *MockStorage) GetMovementHistory(ctx context.Context, variantID string, limit int) ([]StockMovement, error) {
	args := m.Called(ctx, variantID, limit)
	return args.Get(0).([]StockMovement), args.Error(1)
}

func (m *MockStorage) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	args := m.Called(ctx, identifier)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

const (
	imei809 = "356938035643809"
	imei817 = "356938035643817"
	imei825 = "490154203237518"
)

// trackedPhone は追跡中のIMEIバリアント（1台は入力済み、1台は未入力）
func trackedPhone(faker *gofakeit.Faker) *Variant {
	return &Variant{
		ID:               "v1",
		ProductID:        "P1",
		Name:             faker.ProductName(),
		CostPrice:        decimal.NewFromInt(int64(faker.IntRange(100, 500))),
		SellingPrice:     decimal.NewFromInt(int64(faker.IntRange(600, 900))),
		IdentifierKind:   IdentifierKindIMEI,
		Quantity:         2,
		IsParent:         true,
		TrackingEnabled:  true,
		ChildIdentifiers: []string{imei809, ""},
		VariantType:      VariantTypeParent,
		Version:          3,
	}
}

func sibling() Variant {
	return Variant{ID: "v2", ProductID: "P1", Name: "Phone Y", Quantity: 1, TrackingEnabled: true,
		IdentifierKind: IdentifierKindIMEI, ChildIdentifiers: []string{"356938035643999"}, Version: 1}
}

func newTestManager(storage Storage) *Manager {
	return NewManager(storage, nil, zap.NewNop(), DefaultConfig())
}

func TestManager_AdjustStock(t *testing.T) {
	faker := gofakeit.New(1)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := WithUser(context.Background(), "alice")

	v := trackedPhone(faker)

	// モックの期待値設定
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v, sibling()}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, imei817).Return(false, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.MatchedBy(func(saved *Variant) bool {
		return saved.Version == 4 && saved.Quantity == 3 && saved.UpdatedBy == "alice"
	})).Return(nil)
	mockStorage.On("AppendMovement", mock.Anything, mock.MatchedBy(func(mv *StockMovement) bool {
		return mv.CreatedBy == "alice" && mv.VariantID == "v1" && mv.QuantityDelta == 1
	})).Return(nil)

	// テスト実行
	res, err := manager.AdjustStock(ctx, "v1", AdjustmentIntent{
		Type:        AdjustmentTypeIn,
		Amount:      1,
		Reason:      ReasonPurchase,
		Identifiers: []string{" " + imei817 + " "},
	})

	// アサーション
	require.NoError(t, err)
	assert.Equal(t, []string{imei809, "", imei817}, res.Variant.ChildIdentifiers)
	assert.Equal(t, []string{imei817}, res.Movement.IdentifiersAdded)
	assert.Equal(t, int64(2), res.Movement.PreviousQuantity)
	assert.Equal(t, int64(3), res.Movement.NewQuantity)
	mockStorage.AssertExpectations(t)
}

func TestManager_AdjustStock_DuplicateInProduct(t *testing.T) {
	faker := gofakeit.New(2)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := context.Background()

	v := trackedPhone(faker)
	s := sibling()

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v, s}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, mock.Anything).Return(false, nil)

	_, err := manager.AdjustStock(ctx, "v1", AdjustmentIntent{
		Type:        AdjustmentTypeIn,
		Amount:      1,
		Reason:      ReasonPurchase,
		Identifiers: []string{s.ChildIdentifiers[0]},
	})

	assert.ErrorIs(t, err, ErrDuplicateInParent)
	mockStorage.AssertNotCalled(t, "WithinTransaction", mock.Anything)
	mockStorage.AssertNotCalled(t, "SaveVariant", mock.Anything, mock.Anything)
}

func TestManager_AdjustStock_DuplicateGlobal(t *testing.T) {
	faker := gofakeit.New(3)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := trackedPhone(faker)

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, imei825).Return(true, nil)

	_, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type:        AdjustmentTypeIn,
		Amount:      1,
		Reason:      ReasonPurchase,
		Identifiers: []string{imei825},
	})

	assert.ErrorIs(t, err, ErrDuplicateGlobal)
	mockStorage.AssertNotCalled(t, "SaveVariant", mock.Anything, mock.Anything)
}

func TestManager_AdjustStock_SerialSkipsGlobalLookup(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Laptop", IdentifierKind: IdentifierKindSerial, Version: 1}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v}, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)
	mockStorage.On("AppendMovement", mock.Anything, mock.AnythingOfType("*variant.StockMovement")).Return(nil)

	res, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type:        AdjustmentTypeIn,
		Amount:      2,
		Reason:      ReasonPurchase,
		Identifiers: []string{"SN-1", "SN-2"},
	})

	require.NoError(t, err)
	assert.True(t, res.Variant.TrackingEnabled)
	assert.Equal(t, "system", res.Movement.CreatedBy)
	mockStorage.AssertNotCalled(t, "IdentifierExists", mock.Anything, mock.Anything)
}

func TestManager_AdjustStock_NotFound(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	mockStorage.On("GetVariant", mock.Anything, "missing").Return(nil, ErrVariantNotFound)

	_, err := manager.AdjustStock(context.Background(), "missing", AdjustmentIntent{
		Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase,
	})

	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestManager_AdjustStock_StorageFailure(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(nil, errors.New("connection refused"))

	_, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase,
	})

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get_variant", se.Operation)
}

func TestManager_AdjustStock_VersionMismatch(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Case", Quantity: 5, Version: 7}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(ErrVersionMismatch)

	_, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type: AdjustmentTypeOut, Amount: 1, Reason: ReasonSale,
	})

	assert.ErrorIs(t, err, ErrVersionMismatch)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
	mockStorage.AssertNotCalled(t, "AppendMovement", mock.Anything, mock.Anything)
}

func TestManager_AdjustStock_InvalidID(t *testing.T) {
	manager := newTestManager(new(MockStorage))

	_, err := manager.AdjustStock(context.Background(), "", AdjustmentIntent{
		Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase,
	})

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestManager_Metrics(t *testing.T) {
	mockStorage := new(MockStorage)
	registry := prometheus.NewRegistry()
	manager := NewManager(mockStorage, NewMetrics(registry), zap.NewNop(), DefaultConfig())

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Case", Quantity: 5, MinQuantity: int64Ptr(5), Version: 1}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)
	mockStorage.On("AppendMovement", mock.Anything, mock.AnythingOfType("*variant.StockMovement")).Return(nil)

	_, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type: AdjustmentTypeOut, Amount: 1, Reason: ReasonSale,
	})
	require.NoError(t, err)

	_, err = manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type: AdjustmentTypeOut, Amount: 0, Reason: ReasonSale,
	})
	require.Error(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			values[f.GetName()] += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), values["variant_stock_adjustments_total"])
	assert.Equal(t, float64(1), values["variant_stock_rejections_total"])
	assert.Equal(t, float64(1), values["variant_stock_low_stock_total"])
}

func TestManager_CreateVariant(t *testing.T) {
	faker := gofakeit.New(4)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	mockStorage.On("CreateVariant", mock.Anything, mock.MatchedBy(func(v *Variant) bool {
		return v.Quantity == 0 && v.Version == 1 && !v.TrackingEnabled &&
			v.IdentifierKind == IdentifierKindSerial && v.VariantType == VariantTypeStandard &&
			len(v.ChildIdentifiers) == 0
	})).Return(nil)

	v := &Variant{ProductID: "P1", Name: faker.ProductName(), Quantity: 99, ChildIdentifiers: []string{"X"}}
	require.NoError(t, manager.CreateVariant(context.Background(), v))
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, int64(0), v.Quantity)
	mockStorage.AssertExpectations(t)
}

func TestManager_CreateVariant_Errors(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := context.Background()

	err := manager.CreateVariant(ctx, &Variant{ProductID: "P1"})
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	mockStorage.AssertNotCalled(t, "CreateVariant", mock.Anything, mock.Anything)

	mockStorage.On("CreateVariant", mock.Anything, mock.MatchedBy(func(v *Variant) bool { return v.ID == "dup" })).
		Return(ErrDuplicateVariant)
	mockStorage.On("CreateVariant", mock.Anything, mock.MatchedBy(func(v *Variant) bool { return v.ID == "broken" })).
		Return(errors.New("disk full"))

	assert.ErrorIs(t, manager.CreateVariant(ctx, &Variant{ID: "dup", ProductID: "P1", Name: "A"}), ErrDuplicateVariant)

	err = manager.CreateVariant(ctx, &Variant{ID: "broken", ProductID: "P1", Name: "A"})
	var se *StorageError
	assert.True(t, errors.As(err, &se))
}

func TestManager_GetHistory_DefaultLimit(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	history := []StockMovement{{ID: "m2"}, {ID: "m1"}}
	mockStorage.On("GetMovementHistory", mock.Anything, "v1", 100).Return(history, nil)
	mockStorage.On("GetMovementHistory", mock.Anything, "v1", 5).Return(history[:1], nil)

	got, err := manager.GetHistory(context.Background(), "v1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = manager.GetHistory(context.Background(), "v1", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	mockStorage.AssertExpectations(t)
}

func TestManager_GetProductSummary(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := NewManager(mockStorage, nil, zap.NewNop(), &Config{LowStockThreshold: 3, HistoryLimit: 10})

	variants := []Variant{
		{ID: "v1", ProductID: "P1", Quantity: 4, CostPrice: decimal.NewFromInt(10), SellingPrice: decimal.NewFromInt(15)},
		{ID: "v1-u1", ProductID: "P1", Quantity: 1, VariantType: VariantTypeIMEIChild},
	}
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return(variants, nil)

	summary, err := manager.GetProductSummary(context.Background(), "P1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Stock.TotalStock)
	assert.Equal(t, StockStatusInStock, summary.Stock.Status)
	assert.Equal(t, 1, summary.Stock.ExcludedChildUnits)
	assert.True(t, decimal.NewFromInt(40).Equal(summary.Valuation.CostValue))
	assert.Len(t, summary.Variants, 2)

	_, err = manager.GetProductSummary(context.Background(), "bad id!", true)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestManager_ExecuteBatch(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Case", Quantity: 5, Version: 1}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("GetVariant", mock.Anything, "missing").Return(nil, ErrVariantNotFound)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)
	mockStorage.On("AppendMovement", mock.Anything, mock.AnythingOfType("*variant.StockMovement")).Return(nil)

	result, err := manager.ExecuteBatch(context.Background(), []BatchAdjustment{
		{VariantID: "v1", Intent: AdjustmentIntent{Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase}},
		{VariantID: "missing", Intent: AdjustmentIntent{Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase}},
		{VariantID: "v1", Intent: AdjustmentIntent{Type: AdjustmentTypeOut, Amount: 0, Reason: ReasonSale}},
	})

	require.NoError(t, err)
	assert.Equal(t, BatchStatusPartial, result.Status)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, "VariantNotFound", result.Errors[0].Code)
	assert.Equal(t, "InvalidQuantity", result.Errors[1].Code)
	assert.NotNil(t, result.CompletedAt)
}

func TestManager_ExecuteBatch_Limits(t *testing.T) {
	manager := NewManager(new(MockStorage), nil, zap.NewNop(), &Config{MaxBatchSize: 1})
	ctx := context.Background()

	_, err := manager.ExecuteBatch(ctx, nil)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = manager.ExecuteBatch(ctx, make([]BatchAdjustment, 2))
	assert.True(t, errors.As(err, &ve))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = manager.ExecuteBatch(cancelled, make([]BatchAdjustment, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_ExecuteBatch_CancelledKeepsCommitted(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Case", Quantity: 5, Version: 1}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)
	// 1件目の確定後に呼び出し元がキャンセルする
	mockStorage.On("AppendMovement", mock.Anything, mock.AnythingOfType("*variant.StockMovement")).
		Run(func(mock.Arguments) { cancel() }).Return(nil)

	intent := AdjustmentIntent{Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase}
	result, err := manager.ExecuteBatch(ctx, []BatchAdjustment{
		{VariantID: "v1", Intent: intent},
		{VariantID: "v1", Intent: intent},
		{VariantID: "v1", Intent: intent},
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	require.Len(t, result.Results, 1)
	assert.Equal(t, int64(6), result.Results[0].Variant.Quantity)
	assert.Equal(t, BatchStatusPartial, result.Status)
	assert.NotNil(t, result.CompletedAt)
	mockStorage.AssertNumberOfCalls(t, "SaveVariant", 1)
}

func TestManager_AdjustStock_TrackedQuantityCap(t *testing.T) {
	mockStorage := new(MockStorage)
	cfg := DefaultConfig()
	cfg.MaxTrackedQuantity = 3
	manager := NewManager(mockStorage, nil, zap.NewNop(), cfg)

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Laptop", Quantity: 2, TrackingEnabled: true,
		IsParent: true, ChildIdentifiers: []string{"SN-1", ""}, Version: 1}
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)

	_, err := manager.AdjustStock(context.Background(), "v1", AdjustmentIntent{
		Type: AdjustmentTypeIn, Amount: 2, Reason: ReasonPurchase,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	mockStorage.AssertNotCalled(t, "SaveVariant", mock.Anything, mock.Anything)
}

func TestManager_SetTracking_QuantityCap(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Bulk cable", Quantity: math.MaxInt64, Version: 1}
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)

	_, err := manager.SetTracking(context.Background(), "v1", true)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	mockStorage.AssertNotCalled(t, "SaveVariant", mock.Anything, mock.Anything)
}

func TestManager_ValidateIdentifier(t *testing.T) {
	faker := gofakeit.New(5)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := trackedPhone(faker)
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v, sibling()}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, imei817).Return(false, nil)
	mockStorage.On("IdentifierExists", mock.Anything, imei825).Return(true, nil)
	mockStorage.On("IdentifierExists", mock.Anything, mock.Anything).Return(false, nil)

	got, err := manager.ValidateIdentifier(context.Background(), "v1", " "+imei817)
	require.NoError(t, err)
	assert.Equal(t, imei817, got)

	_, err = manager.ValidateIdentifier(context.Background(), "v1", imei809)
	assert.ErrorIs(t, err, ErrDuplicateInParent)

	_, err = manager.ValidateIdentifier(context.Background(), "v1", imei825)
	assert.ErrorIs(t, err, ErrDuplicateGlobal)

	_, err = manager.ValidateIdentifier(context.Background(), "v1", "12345")
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestManager_UpdateChildIdentifiers(t *testing.T) {
	faker := gofakeit.New(6)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)

	v := trackedPhone(faker)
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v, sibling()}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, imei817).Return(false, nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.MatchedBy(func(saved *Variant) bool {
		return saved.Version == 4 && saved.Quantity == 2
	})).Return(nil)

	updated, err := manager.UpdateChildIdentifiers(context.Background(), "v1", []string{imei809, " " + imei817 + " "})
	require.NoError(t, err)
	assert.Equal(t, []string{imei809, imei817}, updated.ChildIdentifiers)

	// 自身が保持するIMEIはグローバル確認の対象外
	mockStorage.AssertNotCalled(t, "IdentifierExists", mock.Anything, imei809)
	mockStorage.AssertExpectations(t)
}

func TestManager_UpdateChildIdentifiers_Rejections(t *testing.T) {
	faker := gofakeit.New(7)
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := context.Background()

	v := trackedPhone(faker)
	untracked := &Variant{ID: "v3", ProductID: "P1", Name: "Case", Quantity: 2, Version: 1}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("GetVariant", mock.Anything, "v3").Return(untracked, nil)
	mockStorage.On("ListVariantsByProduct", mock.Anything, "P1").Return([]Variant{*v, sibling()}, nil)
	mockStorage.On("IdentifierExists", mock.Anything, mock.Anything).Return(false, nil)

	_, err := manager.UpdateChildIdentifiers(ctx, "v3", []string{"A", "B"})
	assert.ErrorIs(t, err, ErrTrackingDisabled)

	_, err = manager.UpdateChildIdentifiers(ctx, "v1", []string{imei809})
	assert.ErrorIs(t, err, ErrIdentifierCountMismatch)

	_, err = manager.UpdateChildIdentifiers(ctx, "v1", []string{imei817, imei817})
	assert.ErrorIs(t, err, ErrDuplicateInParent)

	_, err = manager.UpdateChildIdentifiers(ctx, "v1", []string{imei809, sibling().ChildIdentifiers[0]})
	assert.ErrorIs(t, err, ErrDuplicateInParent)

	mockStorage.AssertNotCalled(t, "SaveVariant", mock.Anything, mock.Anything)
}

func TestManager_SetTracking(t *testing.T) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := context.Background()

	stocked := &Variant{ID: "v1", ProductID: "P1", Name: "Laptop", IdentifierKind: IdentifierKindSerial,
		Quantity: 2, VariantType: VariantTypeStandard, Version: 1}
	empty := &Variant{ID: "v2", ProductID: "P1", Name: "Laptop", Quantity: 0, Version: 1}
	tracked := &Variant{ID: "v3", ProductID: "P1", Name: "Laptop", Quantity: 1, TrackingEnabled: true,
		IsParent: true, ChildIdentifiers: []string{"SN-1"}, Version: 2}

	mockStorage.On("GetVariant", mock.Anything, "v1").Return(stocked, nil)
	mockStorage.On("GetVariant", mock.Anything, "v2").Return(empty, nil)
	mockStorage.On("GetVariant", mock.Anything, "v3").Return(tracked, nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)

	enabled, err := manager.SetTracking(ctx, "v1", true)
	require.NoError(t, err)
	assert.True(t, enabled.TrackingEnabled)
	assert.Equal(t, []string{"", ""}, enabled.ChildIdentifiers)
	assert.Equal(t, VariantTypeParent, enabled.VariantType)
	assert.Equal(t, int64(2), enabled.Version)

	unchanged, err := manager.SetTracking(ctx, "v2", true)
	require.NoError(t, err)
	assert.False(t, unchanged.TrackingEnabled)

	disabled, err := manager.SetTracking(ctx, "v3", false)
	require.NoError(t, err)
	assert.False(t, disabled.TrackingEnabled)
	assert.Empty(t, disabled.ChildIdentifiers)

	mockStorage.AssertNumberOfCalls(t, "SaveVariant", 2)
}

func BenchmarkManager_AdjustStock(b *testing.B) {
	mockStorage := new(MockStorage)
	manager := newTestManager(mockStorage)
	ctx := context.Background()

	v := &Variant{ID: "v1", ProductID: "P1", Name: "Case", Quantity: 5, Version: 1}

	// モックの期待値設定
	mockStorage.On("GetVariant", mock.Anything, "v1").Return(v, nil)
	mockStorage.On("WithinTransaction", mock.Anything).Return(nil)
	mockStorage.On("SaveVariant", mock.Anything, mock.AnythingOfType("*variant.Variant")).Return(nil)
	mockStorage.On("AppendMovement", mock.Anything, mock.AnythingOfType("*variant.StockMovement")).Return(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		manager.AdjustStock(ctx, "v1", AdjustmentIntent{Type: AdjustmentTypeIn, Amount: 1, Reason: ReasonPurchase})
	}
}
