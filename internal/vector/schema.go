package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// RecordClass holds one object per enriched record.
const RecordClass = "EnrichedRecord"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func recordProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "sourceName", DataType: []string{"string"}},
		{Name: "recordKey", DataType: []string{"string"}}, // exact match
		{Name: "segmentedData", DataType: []string{"text"}},
		{Name: "meta", DataType: []string{"text"}},
		{Name: "indexedAt", DataType: []string{"date"}},
	}
}

// EnsureSchema creates the record class, or adds properties missing from an
// older version of it.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, RecordClass)
	if err != nil {
		return err
	}

	properties := recordProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       RecordClass,
			Description: "A source record enriched by text analysis",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, RecordClass)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, RecordClass, p); err != nil {
			return err
		}
	}
	return nil
}
