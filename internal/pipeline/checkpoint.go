package pipeline

import (
	"fmt"
	"strconv"
	"time"
)

const (
	KeySinceTime = "since_time"
	KeySinceID   = "since_id"
)

// Checkpoint is the opaque per-workflow state blob a source connector reads at
// the start of a pass and hands back at the end. Sub-streams (a country, a
// subreddit, a URL) nest their own cursor under their name.
type Checkpoint map[string]any

// Cursor is the canonical position inside one stream.
type Cursor struct {
	SinceTime time.Time
	SinceID   string
}

func (c Cursor) IsZero() bool {
	return c.SinceTime.IsZero() && c.SinceID == ""
}

// Clone deep-copies the nested maps and slices of the checkpoint. Other values
// are copied as-is. A nil checkpoint clones to an empty one.
func (c Checkpoint) Clone() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Checkpoint:
		return t.Clone()
	case map[string]any:
		return map[string]any(Checkpoint(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func (c Checkpoint) stream(name string) map[string]any {
	if name == "" {
		return c
	}
	if nested, ok := c[name].(map[string]any); ok {
		return nested
	}
	if nested, ok := c[name].(Checkpoint); ok {
		return nested
	}
	return nil
}

// Cursor reads the cursor of the named stream; the empty name is the top level.
func (c Checkpoint) Cursor(name string) Cursor {
	s := c.stream(name)
	if s == nil {
		return Cursor{}
	}

	var cur Cursor
	switch v := s[KeySinceTime].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			cur.SinceTime = t.UTC()
		}
	case time.Time:
		cur.SinceTime = v.UTC()
	}
	switch v := s[KeySinceID].(type) {
	case string:
		cur.SinceID = v
	case float64:
		cur.SinceID = strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
	default:
		cur.SinceID = fmt.Sprint(v)
	}
	return cur
}

// SetCursor writes cur into the named stream. Zero fields are not written.
func (c Checkpoint) SetCursor(name string, cur Cursor) {
	if !cur.SinceTime.IsZero() {
		c.Set(name, KeySinceTime, cur.SinceTime.UTC().Format(time.RFC3339Nano))
	}
	if cur.SinceID != "" {
		c.Set(name, KeySinceID, cur.SinceID)
	}
}

// Value returns a connector-specific key from the named stream.
func (c Checkpoint) Value(name, key string) any {
	s := c.stream(name)
	if s == nil {
		return nil
	}
	return s[key]
}

func (c Checkpoint) Set(name, key string, value any) {
	if name == "" {
		c[key] = value
		return
	}
	s := c.stream(name)
	if s == nil {
		s = map[string]any{}
		c[name] = s
	}
	s[key] = value
}
