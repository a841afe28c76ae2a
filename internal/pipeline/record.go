package pipeline

import (
	"fmt"
	"maps"

	"github.com/zeebo/xxh3"
)

// Record is the unit of data flowing from a source connector through the
// analyzer into a sink.
type Record struct {
	ProcessedText string         `json:"processed_text"`
	SegmentedData map[string]any `json:"segmented_data,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	SourceName    string         `json:"source_name"`
}

// Merge stores value under key in SegmentedData. Existing keys are never
// overwritten: map values are unioned, anything else is left alone. It
// reports whether anything was written.
func (r *Record) Merge(key string, value any) bool {
	if r.SegmentedData == nil {
		r.SegmentedData = make(map[string]any)
	}
	existing, ok := r.SegmentedData[key]
	if !ok {
		r.SegmentedData[key] = value
		return true
	}

	oldMap, okOld := existing.(map[string]any)
	newMap, okNew := value.(map[string]any)
	if !okOld || !okNew {
		return false
	}

	merged := maps.Clone(oldMap)
	wrote := false
	for k, v := range newMap {
		if _, taken := merged[k]; !taken {
			merged[k] = v
			wrote = true
		}
	}
	r.SegmentedData[key] = merged
	return wrote
}

// Key returns the natural key used for deduplication and idempotent sinks.
func (r Record) Key() string {
	if id, ok := r.Meta["id"]; ok && id != nil {
		if s := fmt.Sprint(id); s != "" {
			return r.SourceName + ":" + s
		}
	}
	return fmt.Sprintf("%s:%016x", r.SourceName, xxh3.HashString(r.SourceName+"\x00"+r.ProcessedText))
}

// Clone copies the record with fresh top-level maps so analyzers can enrich
// it without touching the caller's copy.
func (r Record) Clone() Record {
	out := r
	out.SegmentedData = maps.Clone(r.SegmentedData)
	out.Meta = maps.Clone(r.Meta)
	return out
}

// Fields flattens the record into the dictionary sinks build payloads from.
func (r Record) Fields() map[string]any {
	return map[string]any{
		"processed_text": r.ProcessedText,
		"segmented_data": r.SegmentedData,
		"meta":           r.Meta,
		"source_name":    r.SourceName,
	}
}
