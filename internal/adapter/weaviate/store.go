package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"hark/apps/backend/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// UpsertRecord writes the object under id, replacing it when it already
// exists. It reports whether the object was newly created.
func (s *Store) UpsertRecord(ctx context.Context, id string, props map[string]any, vec []float32) (bool, error) {
	exists, err := s.client.Data().Checker().
		WithClassName(vector.RecordClass).
		WithID(id).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check object %s: %w", id, err)
	}

	if exists {
		updater := s.client.Data().Updater().
			WithClassName(vector.RecordClass).
			WithID(id).
			WithProperties(props)
		if len(vec) > 0 {
			updater = updater.WithVector(vec)
		}
		if err := updater.Do(ctx); err != nil {
			return false, fmt.Errorf("failed to update object %s: %w", id, err)
		}
		return false, nil
	}

	creator := s.client.Data().Creator().
		WithClassName(vector.RecordClass).
		WithID(id).
		WithProperties(props)
	if len(vec) > 0 {
		creator = creator.WithVector(vec)
	}
	if _, err := creator.Do(ctx); err != nil {
		return false, fmt.Errorf("failed to create object %s: %w", id, err)
	}
	return true, nil
}

// CountRecords returns how many records the index holds.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.RecordClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[vector.RecordClass].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	if count, ok := meta["count"].(float64); ok {
		return int(count), nil
	}
	return 0, nil
}
