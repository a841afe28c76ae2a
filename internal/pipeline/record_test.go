package pipeline

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_MergeNeverOverwrites(t *testing.T) {
	r := Record{ProcessedText: "hello"}

	assert.True(t, r.Merge("sentiment", map[string]any{"positive": 0.9}))
	assert.False(t, r.Merge("sentiment", map[string]any{"positive": 0.1}))
	assert.True(t, r.Merge("sentiment", map[string]any{"negative": 0.1}))
	assert.True(t, r.Merge("lang", "en"))
	assert.False(t, r.Merge("lang", "fr"))

	want := map[string]any{
		"sentiment": map[string]any{"positive": 0.9, "negative": 0.1},
		"lang":      "en",
	}
	if diff := cmp.Diff(want, r.SegmentedData); diff != "" {
		t.Errorf("segmented data mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_CloneIsolatesMaps(t *testing.T) {
	orig := Record{ProcessedText: "x", SegmentedData: map[string]any{"a": 1}, Meta: map[string]any{"id": "1"}}
	c := orig.Clone()
	c.Merge("b", 2)
	c.Meta["extra"] = true

	assert.NotContains(t, orig.SegmentedData, "b")
	assert.NotContains(t, orig.Meta, "extra")
}

func TestRecord_Key(t *testing.T) {
	withID := Record{SourceName: "reddit", Meta: map[string]any{"id": "t3_abc"}}
	assert.Equal(t, "reddit:t3_abc", withID.Key())

	a := Record{SourceName: "crawler", ProcessedText: "same"}
	b := Record{SourceName: "crawler", ProcessedText: "same"}
	c := Record{SourceName: "crawler", ProcessedText: "different"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestCheckpoint_Streams(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cp := Checkpoint{}
	cp.SetCursor("", Cursor{SinceTime: ts, SinceID: "42"})
	cp.SetCursor("us", Cursor{SinceTime: ts.Add(time.Hour)})
	cp.Set("https://example.com", "content_hash", "abc")

	assert.Equal(t, Cursor{SinceTime: ts, SinceID: "42"}, cp.Cursor(""))
	assert.Equal(t, Cursor{SinceTime: ts.Add(time.Hour)}, cp.Cursor("us"))
	assert.Equal(t, Cursor{}, cp.Cursor("gb"))
	assert.Equal(t, "abc", cp.Value("https://example.com", "content_hash"))
}

func TestCheckpoint_SurvivesJSONRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cp := Checkpoint{}
	cp.SetCursor("news", Cursor{SinceTime: ts, SinceID: "t3_1"})

	b, err := json.Marshal(cp)
	require.NoError(t, err)

	var decoded Checkpoint
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, cp.Cursor("news"), decoded.Cursor("news"))
}

func TestCheckpoint_NumericSinceID(t *testing.T) {
	cp := Checkpoint{"since_id": float64(1234567890123)}
	assert.Equal(t, "1234567890123", cp.Cursor("").SinceID)
}

func TestCheckpoint_CloneIsDeep(t *testing.T) {
	cp := Checkpoint{}
	cp.SetCursor("us", Cursor{SinceID: "1"})

	c := cp.Clone()
	c.SetCursor("us", Cursor{SinceID: "2"})
	assert.Equal(t, "1", cp.Cursor("us").SinceID)

	var nilCp Checkpoint
	assert.NotNil(t, nilCp.Clone())
}

func TestCheckpoint_CloneKeepsUnencodableValues(t *testing.T) {
	cp := Checkpoint{"score": math.NaN(), "ids": []any{"a", "b"}}
	cp.SetCursor("us", Cursor{SinceID: "1"})

	c := cp.Clone()
	require.Len(t, c, 3)
	assert.True(t, math.IsNaN(c["score"].(float64)))
	assert.Equal(t, "1", c.Cursor("us").SinceID)

	c["ids"].([]any)[0] = "z"
	assert.Equal(t, "a", cp["ids"].([]any)[0])
}

func TestScores_OrderedDescending(t *testing.T) {
	s := NewScores(map[string]float64{"neutral": 0.2, "positive": 0.7, "negative": 0.1})

	top, ok := s.Top()
	require.True(t, ok)
	assert.Equal(t, "positive", top.Label)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"positive":0.7,"neutral":0.2,"negative":0.1}`, string(b))

	var back Scores
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)
}

func TestErrors_Taxonomy(t *testing.T) {
	assert.ErrorIs(t, MissingField("reddit", "subreddits"), ErrConfiguration)
	assert.ErrorIs(t, StatusError("twitter", 401, "expired"), ErrUpstreamDenied)
	assert.ErrorIs(t, StatusError("twitter", 403, "forbidden"), ErrUpstreamDenied)
	assert.ErrorIs(t, StatusError("twitter", 503, "down"), ErrUpstreamUnavailable)
	assert.NotErrorIs(t, StatusError("twitter", 503, "down"), ErrUpstreamDenied)

	cause := errors.New("dial tcp: refused")
	err := Unavailable("reddit", cause)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, &TimeoutError{Operation: "crawl", After: time.Minute}, ErrTimeout)
}

type fakeConfig struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func TestRegistry_Decode(t *testing.T) {
	reg := NewRegistry[*fakeConfig]("source")
	reg.Register("fake", func(raw json.RawMessage) (*fakeConfig, error) {
		var c fakeConfig
		if err := DecodeJSON("fake", raw, &c); err != nil {
			return nil, err
		}
		if c.Name == "" {
			return nil, MissingField("fake", "name")
		}
		return &c, nil
	})

	got, err := reg.Decode(json.RawMessage(`{"type":"fake","name":"n"}`))
	require.NoError(t, err)
	assert.Equal(t, "n", got.Name)

	cases := map[string]string{
		"missing":   ``,
		"null":      `null`,
		"untagged":  `{"name":"n"}`,
		"unknown":   `{"type":"nope"}`,
		"malformed": `{"type":`,
		"invalid":   `{"type":"fake"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Decode(json.RawMessage(raw))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	assert.Equal(t, []string{"fake"}, reg.Kinds())
	assert.Panics(t, func() { reg.Register("fake", nil) })
}
