package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the subset of the Weaviate schema API the backend needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

type ClientAdapter struct {
	Client *weaviate.Client
}

func NewClientAdapter(client *weaviate.Client) *ClientAdapter {
	return &ClientAdapter{Client: client}
}

func (a *ClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.Client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.Client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *ClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.Client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.Client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

const (
	propNamespace = "namespace"
	propRecordID  = "recordId"
)

// chunkProperties are the metadata keys stored on every chunk object.
// Keys outside this list are not returned by queries.
var chunkProperties = []*models.Property{
	{Name: propNamespace, DataType: []string{"text"}, Tokenization: "field"},
	{Name: propRecordID, DataType: []string{"text"}, Tokenization: "field"},
	{Name: "sessionId", DataType: []string{"text"}, Tokenization: "field"},
	{Name: "fileName", DataType: []string{"text"}, Tokenization: "field"},
	{Name: "sourceFile", DataType: []string{"text"}, Tokenization: "field"},
	{Name: "content", DataType: []string{"text"}},
	{Name: "chunkIndex", DataType: []string{"int"}},
	{Name: "totalChunks", DataType: []string{"int"}},
	{Name: "wordCount", DataType: []string{"int"}},
	{Name: "pageNumber", DataType: []string{"int"}},
}

func describeDimension(dim int) string {
	return fmt.Sprintf("session chunks; dimension=%d", dim)
}

func parseDimension(description string) int {
	var dim int
	if _, err := fmt.Sscanf(description, "session chunks; dimension=%d", &dim); err != nil {
		return 0
	}
	return dim
}

func newClass(name string, dim int, metric string) *models.Class {
	if metric == "" {
		metric = "cosine"
	}
	props := make([]*models.Property, len(chunkProperties))
	copy(props, chunkProperties)
	return &models.Class{
		Class:             name,
		Description:       describeDimension(dim),
		Vectorizer:        "none",
		VectorIndexConfig: map[string]interface{}{"distance": metric},
		Properties:        props,
	}
}

// addMissingProperties brings a class created by an older build up to the
// current property list.
func addMissingProperties(ctx context.Context, client SchemaClient, class *models.Class) error {
	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range chunkProperties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, class.Class, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
