package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	ExistsErr       error
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return m.ExistingClass != nil, m.ExistsErr
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &MockSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client))

	require.NotNil(t, client.CreatedClass)
	assert.Equal(t, RecordClass, client.CreatedClass.Class)
	assert.Equal(t, "none", client.CreatedClass.Vectorizer)

	types := map[string]string{}
	for _, p := range client.CreatedClass.Properties {
		types[p.Name] = p.DataType[0]
	}
	assert.Equal(t, "string", types["recordKey"])
	assert.Equal(t, "text", types["content"])
	assert.Equal(t, "date", types["indexedAt"])
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &MockSchemaClient{ExistingClass: &models.Class{
		Class: RecordClass,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "recordKey", DataType: []string{"string"}},
		},
	}}
	require.NoError(t, EnsureSchema(context.Background(), client))

	assert.Nil(t, client.CreatedClass)
	var added []string
	for _, p := range client.AddedProperties {
		added = append(added, p.Name)
	}
	assert.ElementsMatch(t, []string{"sourceName", "segmentedData", "meta", "indexedAt"}, added)
}

func TestEnsureSchema_PropagatesErrors(t *testing.T) {
	client := &MockSchemaClient{ExistsErr: errors.New("connection refused")}
	assert.Error(t, EnsureSchema(context.Background(), client))
}
