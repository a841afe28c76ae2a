package pipeline

import (
	"bytes"
	"encoding/json"
	"sort"
)

type Score struct {
	Label string
	Value float64
}

// Scores is a label to score mapping ordered by descending score. The first
// entry is the top label.
type Scores []Score

func NewScores(m map[string]float64) Scores {
	out := make(Scores, 0, len(m))
	for label, v := range m {
		out = append(out, Score{Label: label, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value == out[j].Value {
			return out[i].Label < out[j].Label
		}
		return out[i].Value > out[j].Value
	})
	return out
}

func (s Scores) Top() (Score, bool) {
	if len(s) == 0 {
		return Score{}, false
	}
	return s[0], true
}

func (s Scores) Map() map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, sc := range s {
		m[sc.Label] = sc.Value
	}
	return m
}

// MarshalJSON encodes the scores as a JSON object that keeps the ordering.
func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sc := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(sc.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valueBytes, err := json.Marshal(sc.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Scores) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = NewScores(m)
	return nil
}
