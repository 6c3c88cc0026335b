package vector

import (
	"context"
	"strings"
	"unicode"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "chunkId",
			DataType: []string{"string"}, // exact match
		},
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "source",
			DataType: []string{"string"},
		},
		{
			Name:     "pageSlide",
			DataType: []string{"string"},
		},
		{
			Name:     "type",
			DataType: []string{"string"},
		},
	}
}

// ClassName maps a collection name such as "interview-prep" to a valid class name ("InterviewPrep").
func ClassName(collection string) string {
	parts := strings.FieldsFunc(collection, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var sb strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}
	name := sb.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "C" + name
	}
	return name
}

// EnsureSchema creates the class if absent, otherwise adds any missing properties.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "An extracted interview-prep chunk",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
