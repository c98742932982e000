// Package importer reads unit identifiers in bulk and books them as one stock-in
package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
)

// SheetOptions selects where identifiers live in a workbook
// ワークブック内の識別子の位置を指定
type SheetOptions struct {
	Sheet      string // 空の場合は最初のシート
	Column     int    // 0始まりの列番号
	SkipHeader bool   // 1行目を見出しとして読み飛ばす
}

// Parsed holds identifiers read from a source
// 読み込んだ識別子
type Parsed struct {
	Identifiers []string `json:"identifiers"`
	Duplicates  []string `json:"duplicates"` // 読み込み時に除外した重複
}

// ReadSpreadsheet reads one column of an xlsx workbook
// xlsxワークブックの1列から識別子を読み込み
func ReadSpreadsheet(r io.Reader, opts SheetOptions) (*Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ワークブックを開けません: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("シートが見つかりません")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("シート %q の読み込みに失敗しました: %w", sheet, err)
	}
	if opts.SkipHeader && len(rows) > 0 {
		rows = rows[1:]
	}

	cells := make([]string, 0, len(rows))
	for _, row := range rows {
		if opts.Column < len(row) {
			cells = append(cells, row[opts.Column])
		}
	}
	return parse(strings.Join(cells, "\n")), nil
}

// ReadText reads identifiers separated by newlines, commas or semicolons
// 改行・カンマ・セミコロン区切りのテキストから識別子を読み込み
func ReadText(r io.Reader) (*Parsed, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("テキストの読み込みに失敗しました: %w", err)
	}
	return parse(string(b)), nil
}

func parse(text string) *Parsed {
	ids, dups := variant.ParseBulkIdentifiers(text)
	if ids == nil {
		ids = []string{}
	}
	if dups == nil {
		dups = []string{}
	}
	return &Parsed{Identifiers: ids, Duplicates: dups}
}

// Importer books parsed identifiers through a stock engine
// 読み込んだ識別子を在庫エンジン経由で入庫
type Importer struct {
	engine variant.StockEngine
	logger *zap.Logger
}

// New creates an importer
func New(engine variant.StockEngine, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{engine: engine, logger: logger}
}

// Apply books every identifier as one stock-in of len(identifiers) units
// すべての識別子を1回の入庫として登録
func (im *Importer) Apply(ctx context.Context, variantID string, parsed *Parsed, reason variant.Reason, notes string) (*variant.AdjustmentResult, error) {
	if parsed == nil || len(parsed.Identifiers) == 0 {
		return nil, variant.NewValidationError("identifiers", "取り込む識別子がありません", "0", variant.ErrEmptyIdentifier)
	}
	if reason == "" {
		reason = variant.ReasonPurchase
	}

	if len(parsed.Duplicates) > 0 {
		im.logger.Warn("重複した識別子を除外しました",
			zap.String("variant_id", variantID),
			zap.Strings("duplicates", parsed.Duplicates),
		)
	}

	res, err := im.engine.AdjustStock(ctx, variantID, variant.AdjustmentIntent{
		Type:        variant.AdjustmentTypeIn,
		Amount:      int64(len(parsed.Identifiers)),
		Reason:      reason,
		Notes:       notes,
		Identifiers: parsed.Identifiers,
	})
	if err != nil {
		return nil, err
	}

	im.logger.Info("識別子一括取り込み完了",
		zap.String("variant_id", variantID),
		zap.Int("count", len(parsed.Identifiers)),
	)
	return res, nil
}
