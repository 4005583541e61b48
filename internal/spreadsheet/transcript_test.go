package spreadsheet

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func records(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestWrite_TranscriptSheet(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, records(
		`{"text":"bom dia","extra":{"lang":"pt"},"speaker":"A","end":1200,"start":0}`,
		`{"speaker":"B","start":1200,"end":1800,"text":"oi","confidence":0.93,"words":[1,2]}`,
	))
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{TranscriptSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(TranscriptSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"speaker", "start", "end", "text", "confidence", "extra", "words"}, rows[0])
	assert.Equal(t, []string{"A", "0", "1200", "bom dia", "", `{"lang":"pt"}`}, rows[1])
	assert.Equal(t, []string{"B", "1200", "1800", "oi", "0.93", "", "[1,2]"}, rows[2])
}

func TestWrite_SummarySheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records(
		`{"speaker":"A","start":0,"end":1000}`,
		`{"speaker":"A","start":1000,"end":1500}`,
		`{"speaker":"B"}`,
	)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	total, err := f.GetCellValue(SummarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "3", total)

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Falante", "Falas", "Tempo (ms)"}, rows[2])
	assert.Equal(t, []string{"A", "2", "1500"}, rows[3])
	assert.Equal(t, []string{"B", "1", "0"}, rows[4])
}

func TestBuild_NonObjectRecords(t *testing.T) {
	f, err := Build(records(`"linha solta"`, `{"speaker":"A"}`, `42`))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(TranscriptSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"speaker", "value"}, rows[0])
	assert.Equal(t, []string{"", "linha solta"}, rows[1])
	assert.Equal(t, []string{"A"}, rows[2])
	assert.Equal(t, []string{"", "42"}, rows[3])
}

func TestObjectKeysKeepsDocumentOrder(t *testing.T) {
	assert.Equal(t, []string{"z", "a", "m"}, objectKeys(json.RawMessage(`{"z":1,"a":{"x":[1]},"m":null}`)))
	assert.Nil(t, objectKeys(json.RawMessage(`[1,2]`)))
}
