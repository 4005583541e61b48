package aggregator

import (
	"encoding/json"
	"sort"
	"strconv"
)

const unknownSpeaker = "?"

type SpeakerStats struct {
	Speaker    string  `json:"speaker"`
	Utterances int     `json:"utterances"`
	SpokenMs   float64 `json:"spoken_ms"`
}

type Summary struct {
	Total    int            `json:"total"`
	Speakers []SpeakerStats `json:"speakers"`
}

// Summarize counts utterances per speaker. Spoken time is summed from numeric
// start/end fields when both are present.
func Summarize(records []json.RawMessage) Summary {
	counts := map[string]*SpeakerStats{}
	for _, raw := range records {
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			rec = nil
		}
		sp := speakerOf(rec)
		st, ok := counts[sp]
		if !ok {
			st = &SpeakerStats{Speaker: sp}
			counts[sp] = st
		}
		st.Utterances++
		start, okS := rec["start"].(float64)
		end, okE := rec["end"].(float64)
		if okS && okE && end >= start {
			st.SpokenMs += end - start
		}
	}

	out := Summary{Total: len(records), Speakers: make([]SpeakerStats, 0, len(counts))}
	for _, st := range counts {
		out.Speakers = append(out.Speakers, *st)
	}
	sort.Slice(out.Speakers, func(i, j int) bool {
		a, b := out.Speakers[i], out.Speakers[j]
		if a.Utterances != b.Utterances {
			return a.Utterances > b.Utterances
		}
		return a.Speaker < b.Speaker
	})
	return out
}

func speakerOf(rec map[string]any) string {
	switch v := rec["speaker"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return unknownSpeaker
}
