package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
	"github.com/nemonet1337/zaiVariantStock/pkg/variant/importer"
)

// Engine is everything the handlers need from the stock manager
type Engine interface {
	variant.StockEngine
	variant.VariantManager
}

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handlers for the variant stock API
// バリアント在庫API用のHTTPハンドラーを保持
type Handlers struct {
	engine             Engine
	importer           *importer.Importer
	storage            Pinger
	logger             *zap.Logger
	maxUploadSize      int64
	maxTrackedQuantity int64
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(engine Engine, storage Pinger, logger *zap.Logger, maxUploadSize, maxTrackedQuantity int64) *Handlers {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	if maxTrackedQuantity <= 0 {
		maxTrackedQuantity = variant.DefaultMaxTrackedQuantity
	}
	return &Handlers{
		engine:             engine,
		importer:           importer.New(engine, logger),
		storage:            storage,
		logger:             logger,
		maxUploadSize:      maxUploadSize,
		maxTrackedQuantity: maxTrackedQuantity,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// CreateVariantRequest represents request to create a variant
// バリアント作成リクエストを表現
type CreateVariantRequest struct {
	ID             string                 `json:"id"`
	ProductID      string                 `json:"product_id"`
	Name           string                 `json:"name"`
	SKU            string                 `json:"sku"`
	MinQuantity    *int64                 `json:"min_quantity"`
	MaxQuantity    *int64                 `json:"max_quantity"`
	CostPrice      decimal.Decimal        `json:"cost_price"`
	SellingPrice   decimal.Decimal        `json:"selling_price"`
	IdentifierKind variant.IdentifierKind `json:"identifier_kind"`
}

// IdentifiersRequest represents request to replace the identifier list
// 識別子リスト更新リクエストを表現
type IdentifiersRequest struct {
	Identifiers []string `json:"identifiers"`
}

// ValidateIdentifierRequest represents request to check a single identifier
// 単一識別子の検証リクエストを表現
type ValidateIdentifierRequest struct {
	Identifier string `json:"identifier"`
}

// TrackingRequest represents request to toggle per-unit tracking
// 個体追跡切り替えリクエストを表現
type TrackingRequest struct {
	Enabled bool `json:"enabled"`
}

// ReconcileRequest represents request to preview a list reconciliation
// 識別子リスト調整のプレビューリクエストを表現
type ReconcileRequest struct {
	Identifiers     []string `json:"identifiers"`
	TargetQuantity  int64    `json:"target_quantity"`
	TrackingEnabled bool     `json:"tracking_enabled"`
}

// BatchRequest represents request to run several adjustments
// バッチ在庫調整リクエストを表現
type BatchRequest struct {
	Adjustments []variant.BatchAdjustment `json:"adjustments"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			h.logger.Warn("ストレージのヘルスチェックに失敗しました", zap.Error(err))
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	h.sendJSON(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]any{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "zaiVariantStock",
		},
	})
}

// ListReasons returns the accepted adjustment reasons
// 調整理由の一覧を返す
func (h *Handlers) ListReasons(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, variant.Reasons)
}

// CreateVariant handles variant creation
// バリアント作成リクエストを処理
func (h *Handlers) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req CreateVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	v := &variant.Variant{
		ID:             req.ID,
		ProductID:      req.ProductID,
		Name:           req.Name,
		SKU:            req.SKU,
		MinQuantity:    req.MinQuantity,
		MaxQuantity:    req.MaxQuantity,
		CostPrice:      req.CostPrice,
		SellingPrice:   req.SellingPrice,
		IdentifierKind: req.IdentifierKind,
	}

	if err := h.engine.CreateVariant(h.userContext(r), v); err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, APIResponse{Success: true, Data: v})
}

// GetVariant handles variant lookups
// バリアント取得リクエストを処理
func (h *Handlers) GetVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.GetVariant(r.Context(), mux.Vars(r)["variantId"])
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, v)
}

// ListVariants handles product variant listing
// 商品のバリアント一覧リクエストを処理
func (h *Handlers) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.engine.ListVariants(r.Context(), mux.Vars(r)["productId"])
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, variants)
}

// GetProductSummary handles product stock rollups
// 商品在庫集計リクエストを処理
func (h *Handlers) GetProductSummary(w http.ResponseWriter, r *http.Request) {
	exclude := true
	if v := r.URL.Query().Get("exclude_child_units"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "無効なexclude_child_unitsです")
			return
		}
		exclude = parsed
	}

	summary, err := h.engine.GetProductSummary(r.Context(), mux.Vars(r)["productId"], exclude)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, summary)
}

// AdjustStock handles stock adjustments
// 在庫調整リクエストを処理
func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var intent variant.AdjustmentIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	res, err := h.engine.AdjustStock(h.userContext(r), mux.Vars(r)["variantId"], intent)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, res)
}

// BatchAdjust handles batch adjustments
// バッチ在庫調整リクエストを処理
func (h *Handlers) BatchAdjust(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	batch, err := h.engine.ExecuteBatch(h.userContext(r), req.Adjustments)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, batch)
}

// UpdateIdentifiers handles identifier list replacement
// 識別子リスト更新リクエストを処理
func (h *Handlers) UpdateIdentifiers(w http.ResponseWriter, r *http.Request) {
	var req IdentifiersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	v, err := h.engine.UpdateChildIdentifiers(h.userContext(r), mux.Vars(r)["variantId"], req.Identifiers)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, v)
}

// ValidateIdentifier handles single identifier checks
// 単一識別子の検証リクエストを処理
func (h *Handlers) ValidateIdentifier(w http.ResponseWriter, r *http.Request) {
	var req ValidateIdentifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	id, err := h.engine.ValidateIdentifier(r.Context(), mux.Vars(r)["variantId"], req.Identifier)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, map[string]string{"identifier": id})
}

// SetTracking handles the tracking toggle
// 個体追跡切り替えリクエストを処理
func (h *Handlers) SetTracking(w http.ResponseWriter, r *http.Request) {
	var req TrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	v, err := h.engine.SetTracking(h.userContext(r), mux.Vars(r)["variantId"], req.Enabled)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, v)
}

// Reconcile previews the list a quantity change would produce
// 数量変更後の識別子リストをプレビュー
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	res, err := variant.ReconcileWithLimit(req.Identifiers, req.TargetQuantity, req.TrackingEnabled, h.maxTrackedQuantity)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, res)
}

// ImportIdentifiers books identifiers from an uploaded sheet or pasted text as one stock-in
// アップロードされたシートまたは貼り付けテキストから識別子を一括入庫
func (h *Handlers) ImportIdentifiers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var (
		parsed *importer.Parsed
		err    error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		parsed, err = h.readUpload(r)
	} else {
		parsed, err = importer.ReadText(r.Body)
	}
	if err != nil {
		h.logger.Warn("識別子の読み込みに失敗しました", zap.Error(err))
		h.sendError(w, http.StatusBadRequest, "識別子の読み込みに失敗しました")
		return
	}

	q := r.URL.Query()
	res, err := h.importer.Apply(h.userContext(r), mux.Vars(r)["variantId"], parsed,
		variant.Reason(q.Get("reason")), q.Get("notes"))
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, map[string]any{
		"result":     res,
		"duplicates": parsed.Duplicates,
	})
}

func (h *Handlers) readUpload(r *http.Request) (*importer.Parsed, error) {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		return importer.ReadText(file)
	}

	opts := importer.SheetOptions{Sheet: r.FormValue("sheet")}
	if c := r.FormValue("column"); c != "" {
		col, err := strconv.Atoi(c)
		if err != nil || col < 0 {
			return nil, errors.New("無効な列番号です")
		}
		opts.Column = col
	}
	opts.SkipHeader, _ = strconv.ParseBool(r.FormValue("skip_header"))
	return importer.ReadSpreadsheet(file, opts)
}

// GetHistory handles movement history requests
// 在庫移動履歴リクエストを処理
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			h.sendError(w, http.StatusBadRequest, "無効なlimitです")
			return
		}
		limit = parsed
	}

	history, err := h.engine.GetHistory(r.Context(), mux.Vars(r)["variantId"], limit)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	h.sendSuccess(w, history)
}

// ヘルパーメソッド

// userContext attaches the caller named by X-User-ID
func (h *Handlers) userContext(r *http.Request) context.Context {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		user = "api_user"
	}
	return variant.WithUser(r.Context(), user)
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, variant.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, variant.ErrDuplicateInParent),
		errors.Is(err, variant.ErrDuplicateGlobal),
		errors.Is(err, variant.ErrDuplicateRejected),
		errors.Is(err, variant.ErrDuplicateVariant),
		errors.Is(err, variant.ErrVersionMismatch):
		return http.StatusConflict
	}

	var se *variant.StorageError
	if errors.As(err, &se) {
		return http.StatusInternalServerError
	}

	var (
		ve *variant.ValidationError
		be *variant.BusinessRuleError
		ie *variant.IdentifierError
	)
	if errors.As(err, &ve) || errors.As(err, &be) || errors.As(err, &ie) {
		return http.StatusBadRequest
	}
	if variant.ErrorCode(err) != "Unknown" {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// sendEngineError sends an error response derived from an engine error
// エンジンのエラーからエラーレスポンスを送信
func (h *Handlers) sendEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("リクエスト処理に失敗しました", zap.Error(err))
	}
	h.sendJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
		Code:    variant.ErrorCode(err),
	})
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data any) {
	h.sendJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, APIResponse{Success: false, Error: message})
}

func (h *Handlers) sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
