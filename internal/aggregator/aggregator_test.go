package aggregator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestSummarize(t *testing.T) {
	s := Summarize(raws(
		`{"speaker":"A","start":0,"end":1500,"text":"bom dia"}`,
		`{"speaker":"B","start":1500,"end":2000}`,
		`{"speaker":"A","start":2000,"end":2500}`,
		`{"speaker":1,"text":"numeric speaker"}`,
		`{"text":"no speaker"}`,
		`"not an object"`,
		`{"speaker":"B","start":10,"end":5}`,
	))

	assert.Equal(t, 7, s.Total)
	assert.Equal(t, []SpeakerStats{
		{Speaker: "?", Utterances: 2},
		{Speaker: "A", Utterances: 2, SpokenMs: 2000},
		{Speaker: "B", Utterances: 2, SpokenMs: 500},
		{Speaker: "1", Utterances: 1},
	}, s.Speakers)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.Speakers)
	assert.NotNil(t, s.Speakers)
}
