// Package spreadsheet renders a transcript as an xlsx workbook.
package spreadsheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"audio-relay-go/internal/aggregator"
)

const (
	TranscriptSheet = "Transcricao"
	SummarySheet    = "Resumo"
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	valueColumn = "value"
)

// preferred columns come first when present, the rest follow in first-seen order.
var preferred = []string{"speaker", "start", "end", "text", "confidence"}

// Build returns a workbook with one row per record and a per-speaker summary.
func Build(records []json.RawMessage) (*excelize.File, error) {
	rows := make([]map[string]any, len(records))
	for i, raw := range records {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			var v any
			_ = json.Unmarshal(raw, &v)
			obj = map[string]any{valueColumn: v}
		}
		rows[i] = obj
	}
	header := columns(records, rows)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", TranscriptSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := writeRow(f, TranscriptSheet, 1, headerRow, bold); err != nil {
		return nil, err
	}
	for i, obj := range rows {
		cells := make([]any, len(header))
		for j, col := range header {
			cells[j] = cellValue(obj[col])
		}
		if err := writeRow(f, TranscriptSheet, i+2, cells, 0); err != nil {
			return nil, err
		}
	}

	if err := writeSummary(f, aggregator.Summarize(records), bold); err != nil {
		return nil, err
	}
	return f, nil
}

// Write renders the workbook for records into w.
func Write(w io.Writer, records []json.RawMessage) error {
	f, err := Build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeSummary(f *excelize.File, s aggregator.Summary, bold int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeRow(f, SummarySheet, 1, []any{"Total de falas", s.Total}, bold); err != nil {
		return err
	}
	if err := writeRow(f, SummarySheet, 3, []any{"Falante", "Falas", "Tempo (ms)"}, bold); err != nil {
		return err
	}
	for i, sp := range s.Speakers {
		if err := writeRow(f, SummarySheet, i+4, []any{sp.Speaker, sp.Utterances, sp.SpokenMs}, 0); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any, style int) error {
	if len(cells) == 0 {
		return nil
	}
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, first, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	if style == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(cells), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}

func columns(records []json.RawMessage, rows []map[string]any) []string {
	var keys []string
	for i, raw := range records {
		// document order; map iteration would shuffle them
		keys = append(keys, objectKeys(raw)...)
		if _, ok := rows[i][valueColumn]; ok {
			keys = append(keys, valueColumn)
		}
	}
	keys = lo.Uniq(keys)

	head := lo.Filter(preferred, func(p string, _ int) bool { return slices.Contains(keys, p) })
	return append(head, lo.Without(keys, preferred...)...)
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, float64, bool:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
