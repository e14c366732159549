// Package sheets turns uploaded spreadsheets into lazy row records.
package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row maps a column header to its raw cell value. Empty cells are nil.
type Row map[string]any

// Source yields rows one at a time and returns io.EOF when exhausted.
type Source interface {
	Next() (Row, error)
}

// Open picks a reader by file extension.
func Open(fileName string, r io.Reader) (Source, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return NewCSV(r)
	case ".xlsx", ".xlsm":
		return NewXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(fileName))
	}
}

type CSV struct {
	r      *csv.Reader
	header []string
}

func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: missing header row")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &CSV{r: cr, header: header}, nil
}

func (c *CSV) Next() (Row, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if row, ok := buildRow(c.header, rec); ok {
			return row, nil
		}
	}
}

// XLSX reads the first worksheet of a workbook.
type XLSX struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

func NewXLSX(r io.Reader) (*XLSX, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	sheetsList := f.GetSheetList()
	if len(sheetsList) == 0 {
		f.Close()
		return nil, errors.New("xlsx: workbook has no sheets")
	}
	rows, err := f.Rows(sheetsList[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	x := &XLSX{f: f, rows: rows}
	if !rows.Next() {
		x.Close()
		return nil, errors.New("xlsx: missing header row")
	}
	x.header, err = rows.Columns()
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("xlsx header: %w", err)
	}
	return x, nil
}

func (x *XLSX) Next() (Row, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if row, ok := buildRow(x.header, cols); ok {
			return row, nil
		}
	}
	if err := x.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (x *XLSX) Close() error {
	if x.rows != nil {
		x.rows.Close()
	}
	return x.f.Close()
}

// buildRow pairs cells with headers; fully blank lines are reported as !ok.
func buildRow(header, cells []string) (Row, bool) {
	row := make(Row, len(header))
	blank := true
	for i, h := range header {
		if h == "" {
			continue
		}
		if i >= len(cells) || strings.TrimSpace(cells[i]) == "" {
			row[h] = nil
			continue
		}
		row[h] = cells[i]
		blank = false
	}
	return row, !blank
}
