package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	ExistsErr       error
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	return m.ExistingClass != nil, nil
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
	if err := EnsureSchema(context.Background(), client, "InterviewPrep"); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if client.CreatedClass == nil {
		t.Fatal("Class not created")
	}
	assert.Equal(t, "InterviewPrep", client.CreatedClass.Class)
	assert.Equal(t, "none", client.CreatedClass.Vectorizer)

	expectedProps := map[string]string{
		"chunkId":   "string",
		"content":   "text",
		"source":    "string",
		"pageSlide": "string",
		"type":      "string",
	}
	assert.Len(t, client.CreatedClass.Properties, len(expectedProps))
	for _, prop := range client.CreatedClass.Properties {
		expectedType, ok := expectedProps[prop.Name]
		if !ok {
			t.Errorf("unexpected property %s", prop.Name)
			continue
		}
		if len(prop.DataType) == 0 || prop.DataType[0] != expectedType {
			t.Errorf("Property %s has wrong DataType: %v (expected %s)", prop.Name, prop.DataType, expectedType)
		}
	}
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &MockSchemaClient{
		ExistingClass: &models.Class{
			Class: "InterviewPrep",
			Properties: []*models.Property{
				{Name: "chunkId", DataType: []string{"string"}},
				{Name: "content", DataType: []string{"text"}},
			},
		},
	}

	if err := EnsureSchema(context.Background(), client, "InterviewPrep"); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if client.CreatedClass != nil {
		t.Fatal("Should not recreate class if it exists")
	}

	addedNames := make(map[string]bool)
	for _, p := range client.AddedProperties {
		addedNames[p.Name] = true
	}
	assert.True(t, addedNames["source"])
	assert.True(t, addedNames["pageSlide"])
	assert.True(t, addedNames["type"])
	assert.False(t, addedNames["content"], "Should not re-add existing 'content' property")
}

func TestEnsureSchema_ExistsError(t *testing.T) {
	client := &MockSchemaClient{ExistsErr: errors.New("connection refused")}
	assert.Error(t, EnsureSchema(context.Background(), client, "InterviewPrep"))
}

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"interview-prep": "InterviewPrep",
		"docs":           "Docs",
		"my_corpus v2":   "MyCorpusV2",
		"2024-notes":     "C2024Notes",
		"---":            "C",
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassName(in), in)
	}
}
