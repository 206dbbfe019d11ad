// Package export renders an estimate as an xlsx workbook.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"estimator/internal/service/estimate"
)

const (
	sheetSummary   = "Estimate"
	sheetResources = "Resources"
	sheetFormulas  = "Formulas"
)

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// GenerateExcel writes the summary, resource lines and formula results of an
// estimate to separate sheets.
func GenerateExcel(est *estimate.Estimate) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, s := range []string{sheetResources, sheetFormulas} {
		if _, err := f.NewSheet(s); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", s, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	writeSummary(f, est, headerStyle, moneyStyle)
	writeResources(f, est, headerStyle, moneyStyle)
	writeFormulas(f, est, headerStyle)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	return buf.Bytes(), nil
}

func header(f *excelize.File, sheet string, style int, names ...string) {
	for i, name := range names {
		f.SetCellValue(sheet, cellName(i+1, 1), name)
	}
	f.SetCellStyle(sheet, "A1", cellName(len(names), 1), style)
	f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, est *estimate.Estimate, headerStyle, moneyStyle int) {
	header(f, sheetSummary, headerStyle, "Item", "Value")

	row := 2
	put := func(label string, value any, style int) {
		f.SetCellValue(sheetSummary, cellName(1, row), label)
		f.SetCellValue(sheetSummary, cellName(2, row), value)
		if style != 0 {
			f.SetCellStyle(sheetSummary, cellName(2, row), cellName(2, row), style)
		}
		row++
	}

	put("Template", est.TemplateName, 0)
	put("Code", est.TemplateCode, 0)
	put("Currency", est.Currency, 0)

	codes := make([]string, 0, len(est.Parameters))
	for code := range est.Parameters {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		put("Parameter: "+code, est.Parameters[code].Interface(), 0)
	}

	if b := est.Breakdown; b != nil {
		row++
		put("Materials", b.MaterialsCost, moneyStyle)
		put("Labor", b.LaborCost, moneyStyle)
		for _, a := range b.Overhead {
			put(fmt.Sprintf("Overhead: %s (%v%%)", a.Fund, a.Percent), a.Amount, moneyStyle)
		}
		put("Overhead", b.OverheadCost, moneyStyle)
		put("Total cost", b.TotalCost, moneyStyle)
		put(fmt.Sprintf("Margin (%v%%)", b.MarginPercent), b.MarginAmount, moneyStyle)
		put("Price before discount", b.PriceBeforeDiscount, moneyStyle)
		put(fmt.Sprintf("Discount (%v%%)", b.DiscountPercent), b.DiscountAmount, moneyStyle)
		put("Price after discount", b.PriceAfterDiscount, moneyStyle)
		put(fmt.Sprintf("Tax (%v%%)", b.TaxPercent), b.TaxAmount, moneyStyle)
		put("Final price", b.FinalPrice, moneyStyle)
	}

	for _, w := range est.Warnings {
		put("Warning: "+w.Kind, w.Subject+": "+w.Message, 0)
	}

	f.SetColWidth(sheetSummary, "A", "A", 36)
	f.SetColWidth(sheetSummary, "B", "B", 24)
}

func writeResources(f *excelize.File, est *estimate.Estimate, headerStyle, moneyStyle int) {
	header(f, sheetResources, headerStyle, "Group", "Code", "Name", "Type", "Quantity", "Unit", "Unit cost", "Cost")

	for i, l := range est.ResourceLines {
		row := i + 2
		f.SetCellValue(sheetResources, cellName(1, row), l.Group)
		f.SetCellValue(sheetResources, cellName(2, row), l.ResourceCode)
		f.SetCellValue(sheetResources, cellName(3, row), l.Name)
		f.SetCellValue(sheetResources, cellName(4, row), string(l.Type))
		f.SetCellValue(sheetResources, cellName(5, row), l.Quantity)
		f.SetCellValue(sheetResources, cellName(6, row), l.Unit)
		f.SetCellValue(sheetResources, cellName(7, row), l.UnitCost)
		f.SetCellFormula(sheetResources, cellName(8, row), fmt.Sprintf("%s*%s", cellName(5, row), cellName(7, row)))
	}
	if n := len(est.ResourceLines); n > 0 {
		f.SetCellStyle(sheetResources, cellName(7, 2), cellName(8, n+1), moneyStyle)
	}

	f.SetColWidth(sheetResources, "A", "C", 20)
	f.SetColWidth(sheetResources, "D", "H", 12)
}

func writeFormulas(f *excelize.File, est *estimate.Estimate, headerStyle int) {
	header(f, sheetFormulas, headerStyle, "Code", "Name", "Raw", "Value", "Unit", "Skipped")

	for i, c := range est.Formulas {
		row := i + 2
		f.SetCellValue(sheetFormulas, cellName(1, row), c.Code)
		f.SetCellValue(sheetFormulas, cellName(2, row), c.Name)
		f.SetCellValue(sheetFormulas, cellName(3, row), c.Raw)
		f.SetCellValue(sheetFormulas, cellName(4, row), c.Value)
		f.SetCellValue(sheetFormulas, cellName(5, row), c.Unit)
		f.SetCellValue(sheetFormulas, cellName(6, row), c.Skipped)
	}

	f.SetColWidth(sheetFormulas, "A", "B", 28)
}
