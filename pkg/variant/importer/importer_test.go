package importer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
	"github.com/nemonet1337/zaiVariantStock/pkg/variant/storage"
)

func buildWorkbook(t *testing.T, header string, cells []string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", header))
	for i, c := range cells {
		require.NoError(t, f.SetCellValue(sheet, fmt.Sprintf("A%d", i+2), c))
		require.NoError(t, f.SetCellValue(sheet, fmt.Sprintf("B%d", i+2), "memo"))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadSpreadsheet(t *testing.T) {
	buf := buildWorkbook(t, "IMEI", []string{"356938035643809", " 356938035643810 ", "", "356938035643809"})

	parsed, err := ReadSpreadsheet(buf, SheetOptions{SkipHeader: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"356938035643809", "356938035643810"}, parsed.Identifiers)
	assert.Equal(t, []string{"356938035643809"}, parsed.Duplicates)
}

func TestReadSpreadsheet_UnknownSheet(t *testing.T) {
	buf := buildWorkbook(t, "IMEI", []string{"356938035643809"})

	_, err := ReadSpreadsheet(buf, SheetOptions{Sheet: "nope"})
	assert.Error(t, err)
}

func TestReadSpreadsheet_NotAWorkbook(t *testing.T) {
	_, err := ReadSpreadsheet(strings.NewReader("plain text"), SheetOptions{})
	assert.Error(t, err)
}

func TestReadText(t *testing.T) {
	parsed, err := ReadText(strings.NewReader("AAA111\r\nBBB222, CCC333;AAA111\n\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA111", "BBB222", "CCC333"}, parsed.Identifiers)
	assert.Equal(t, []string{"AAA111"}, parsed.Duplicates)
}

func TestImporter_Apply(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	manager := variant.NewManager(store, nil, nil, nil)

	v := &variant.Variant{
		ProductID:      "phone-x",
		Name:           "Phone X 128GB",
		IdentifierKind: variant.IdentifierKindIMEI,
	}
	require.NoError(t, manager.CreateVariant(ctx, v))

	im := New(manager, nil)
	parsed := &Parsed{Identifiers: []string{"356938035643809", "356938035643810"}}

	res, err := im.Apply(ctx, v.ID, parsed, "", "")
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Variant.Quantity)
	assert.True(t, res.Variant.TrackingEnabled)
	assert.Equal(t, parsed.Identifiers, res.Variant.ChildIdentifiers)
	assert.Equal(t, variant.ReasonPurchase, res.Movement.Reason)

	// 同じIMEIの再取り込みは同一商品内の重複として拒否
	_, err = im.Apply(ctx, v.ID, parsed, variant.ReasonPurchase, "")
	assert.ErrorIs(t, err, variant.ErrDuplicateInParent)
}

func TestImporter_ApplyEmpty(t *testing.T) {
	im := New(variant.NewManager(storage.NewMemoryStorage(), nil, nil, nil), nil)

	_, err := im.Apply(context.Background(), "v1", &Parsed{}, variant.ReasonPurchase, "")
	assert.ErrorIs(t, err, variant.ErrEmptyIdentifier)
}
