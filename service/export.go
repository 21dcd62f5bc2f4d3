package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"parish/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const summarySheet = "汇总"

var cellBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

type sheetStyles struct {
	header, data, money, total int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	var s sheetStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder,
	}); err != nil {
		return nil, err
	}
	if s.data, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center"},
		Border:    cellBorder,
	}); err != nil {
		return nil, err
	}
	// 4 = #,##0.00
	if s.money, err = f.NewStyle(&excelize.Style{
		NumFmt:    4,
		Alignment: &excelize.Alignment{Horizontal: "right", Vertical: "center"},
		Border:    cellBorder,
	}); err != nil {
		return nil, err
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		NumFmt:    4,
		Alignment: &excelize.Alignment{Vertical: "center"},
		Border:    cellBorder,
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// sheetName 工作表名最长 31 个字符且不能含 : \ / ? * [ ]
func sheetName(name string, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "类别"
	}
	base := []rune(name)
	if len(base) > 28 {
		base = base[:28]
	}
	out := string(base)
	for i := 2; used[out]; i++ {
		out = fmt.Sprintf("%s_%d", string(base), i)
	}
	used[out] = true
	return out
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	return f.SetSheetRow(sheet, cell(1, row), &values)
}

// buildWorkbook 期间报表：第一张汇总表，之后每个类别一张明细表
func buildWorkbook(st *periodState) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	styles, err := newSheetStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	ps := st.periodSummary()

	if err := writeSummarySheet(f, styles, ps); err != nil {
		f.Close()
		return nil, err
	}
	used := map[string]bool{summarySheet: true}
	for _, cs := range ps.Categories {
		if err := writeCategorySheet(f, styles, st, cs, sheetName(cs.CategoryName, used)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSummarySheet(f *excelize.File, styles *sheetStyles, ps *PeriodSummary) error {
	sh := summarySheet
	p := ps.Period
	title := fmt.Sprintf("%s（%s ~ %s，%s）", p.Name, p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"), p.Status)
	if err := f.SetCellValue(sh, "A1", title); err != nil {
		return err
	}
	f.MergeCell(sh, "A1", "F1")

	headers := []interface{}{"类别", "性质", "目标", "实际", "差异", "差异率"}
	if err := writeRow(f, sh, 2, headers); err != nil {
		return err
	}
	f.SetCellStyle(sh, "A2", "F2", styles.header)
	f.SetColWidth(sh, "A", "A", 24)
	f.SetColWidth(sh, "B", "B", 10)
	f.SetColWidth(sh, "C", "F", 18)

	row := 3
	for _, cs := range ps.Categories {
		kind := "支出"
		if cs.Kind == models.CategoryKindIncome {
			kind = "收入"
		}
		pct := "-"
		if cs.VariancePct != nil {
			pct = cs.VariancePct.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
		}
		vals := []interface{}{cs.CategoryName, kind, money(cs.TotalTarget), money(cs.TotalActual), money(cs.Variance), pct}
		if err := writeRow(f, sh, row, vals); err != nil {
			return err
		}
		f.SetCellStyle(sh, cell(1, row), cell(2, row), styles.data)
		f.SetCellStyle(sh, cell(3, row), cell(5, row), styles.money)
		f.SetCellStyle(sh, cell(6, row), cell(6, row), styles.data)
		row++
	}

	totals := [][]interface{}{
		{"收入合计", "", money(ps.IncomeTarget), money(ps.IncomeActual), money(ps.IncomeActual.Sub(ps.IncomeTarget)), ""},
		{"支出合计", "", money(ps.ExpenditureTarget), money(ps.ExpenditureActual), money(ps.ExpenditureActual.Sub(ps.ExpenditureTarget)), ""},
		{"结余", "", money(ps.BalanceTarget), money(ps.BalanceActual), money(ps.BalanceActual.Sub(ps.BalanceTarget)), ""},
	}
	for _, vals := range totals {
		if err := writeRow(f, sh, row, vals); err != nil {
			return err
		}
		f.SetCellStyle(sh, cell(1, row), cell(6, row), styles.total)
		row++
	}
	return nil
}

func writeCategorySheet(f *excelize.File, styles *sheetStyles, st *periodState, cs CategorySummary, sh string) error {
	if _, err := f.NewSheet(sh); err != nil {
		return err
	}
	headers := []interface{}{"编码", "名称", "层级", "频次", "单位", "单价", "目标", "实际", "差异"}
	if err := writeRow(f, sh, 1, headers); err != nil {
		return err
	}
	f.SetCellStyle(sh, "A1", "I1", styles.header)
	f.SetColWidth(sh, "A", "A", 12)
	f.SetColWidth(sh, "B", "B", 36)
	f.SetColWidth(sh, "C", "E", 8)
	f.SetColWidth(sh, "F", "I", 18)

	row := 2
	for i := range st.items {
		it := &st.items[i]
		if it.CategoryID != cs.CategoryID {
			continue
		}
		target, actual := st.target[it.ID], st.actual[it.ID]
		name := strings.Repeat("  ", it.Level-1) + it.Name
		vals := []interface{}{it.Code, name, it.Level, "", "", "", money(target), money(actual), money(actual.Sub(target))}
		if leaf, ok := it.Leaf(); ok {
			vals[3] = leaf.Frequency
			vals[4] = leaf.Unit
			vals[5] = money(leaf.Amount)
		}
		if err := writeRow(f, sh, row, vals); err != nil {
			return err
		}
		f.SetCellStyle(sh, cell(1, row), cell(5, row), styles.data)
		f.SetCellStyle(sh, cell(6, row), cell(9, row), styles.money)
		row++
	}

	vals := []interface{}{"合计", "", "", "", "", "", money(cs.TotalTarget), money(cs.TotalActual), money(cs.Variance)}
	if err := writeRow(f, sh, row, vals); err != nil {
		return err
	}
	f.SetCellStyle(sh, cell(1, row), cell(9, row), styles.total)
	return nil
}

// ExportPeriod 把期间报表写成 xlsx
func (r *Reporter) ExportPeriod(ctx context.Context, periodID uint, w io.Writer) error {
	st, err := r.store.loadPeriodState(ctx, periodID)
	if err != nil {
		return err
	}
	f, err := buildWorkbook(st)
	if err != nil {
		return fmt.Errorf("生成 Excel 失败: %w", err)
	}
	defer f.Close()
	return f.Write(w)
}

// ExportFilename 导出文件名
func ExportFilename(p *models.Period) string {
	return fmt.Sprintf("预算_%d_%s.xlsx", p.Year, p.StartDate.Format("20060102"))
}
