package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Encoder serializes export rows into a file format.
type Encoder interface {
	Encode(rows []Row) ([]byte, error)
	ContentType() string
	Extension() string
}

// NewEncoder returns the encoder for format ("csv" or "xlsx").
func NewEncoder(format string) (Encoder, error) {
	switch format {
	case "", "csv":
		return CSVEncoder{}, nil
	case "xlsx":
		return XLSXEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// CSVEncoder writes comma-separated values with a header row.
type CSVEncoder struct{}

func (CSVEncoder) ContentType() string { return "text/csv" }
func (CSVEncoder) Extension() string   { return "csv" }

func (CSVEncoder) Encode(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		if err := w.Write(r.Strings()); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSXEncoder writes a single-sheet workbook.
type XLSXEncoder struct{}

// SheetName is the name of the only worksheet.
const SheetName = "Expenses"

func (XLSXEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXEncoder) Extension() string { return "xlsx" }

func (XLSXEncoder) Encode(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		values := r.Values()
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
