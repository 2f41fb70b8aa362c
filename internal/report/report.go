// Package report renders the closing report of a ledger range.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"cajadiaria/backend/internal/domain"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName = "Ledger"
)

var header = []string{
	"date",
	string(domain.CategoryDeliveryLunch),
	string(domain.CategoryDeliveryBreakfast),
	string(domain.CategoryDineInLunch),
	string(domain.CategoryTakeawayLunch),
	string(domain.CategoryDineInBreakfast),
	string(domain.CategoryTakeawayBreakfast),
	"totalIncome",
}

// Filename is the attachment name for a report in the given extension.
func Filename(r domain.LedgerReport, ext string) string {
	from, to := r.From, r.To
	if from == "" {
		from = "start"
	}
	if to == "" {
		to = "end"
	}
	return fmt.Sprintf("ledger_%s_%s.%s", from, to, ext)
}

func rows(r domain.LedgerReport) [][]int64 {
	out := make([][]int64, 0, len(r.Days)+1)
	for _, day := range r.Days {
		out = append(out, values(day.Categories, day.TotalIncome))
	}
	return out
}

func values(c domain.Categories, total int64) []int64 {
	row := make([]int64, 0, len(domain.AllCategories)+1)
	for _, category := range domain.AllCategories {
		row = append(row, c.Get(category))
	}
	return append(row, total)
}

// WriteCSV writes one line per day followed by a total line.
func WriteCSV(w io.Writer, r domain.LedgerReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, row := range rows(r) {
		if err := cw.Write(csvRecord(r.Days[i].Date, row)); err != nil {
			return err
		}
	}
	if err := cw.Write(csvRecord("total", values(r.Categories, r.TotalIncome))); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func csvRecord(label string, row []int64) []string {
	record := make([]string, 0, len(row)+1)
	record = append(record, label)
	for _, v := range row {
		record = append(record, strconv.FormatInt(v, 10))
	}
	return record
}

// WriteXLSX writes the same table as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, r domain.LedgerReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
	}

	line := 2
	writeRow := func(label string, row []int64) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, label); err != nil {
			return err
		}
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+2, line)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
		line++
		return nil
	}

	for i, row := range rows(r) {
		if err := writeRow(r.Days[i].Date, row); err != nil {
			return err
		}
	}
	if err := writeRow("total", values(r.Categories, r.TotalIncome)); err != nil {
		return err
	}

	return f.Write(w)
}
