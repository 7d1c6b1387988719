// Package weaviate stores session chunks in a Weaviate class. A vector index
// maps to one class; namespaces are an exact-match property that every query
// filters on.
package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"liveworkshop/backend/internal/vector"
)

type Backend struct {
	client *weaviate.Client
	schema SchemaClient
}

func NewBackend(client *weaviate.Client) *Backend {
	return &Backend{client: client, schema: NewClientAdapter(client)}
}

func (b *Backend) DescribeIndex(ctx context.Context, name string) (*vector.IndexDescription, error) {
	exists, err := b.schema.ClassExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", vector.ErrIndexNotFound, name)
	}

	class, err := b.schema.GetClass(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := addMissingProperties(ctx, b.schema, class); err != nil {
		return nil, err
	}

	metric := "cosine"
	if cfg, ok := class.VectorIndexConfig.(map[string]interface{}); ok {
		if d, ok := cfg["distance"].(string); ok {
			metric = d
		}
	}
	// Class creation is synchronous, so an existing class is always ready.
	return &vector.IndexDescription{
		Name:      name,
		Dimension: parseDimension(class.Description),
		Metric:    metric,
		Ready:     true,
	}, nil
}

func (b *Backend) CreateIndex(ctx context.Context, spec vector.IndexSpec) error {
	return b.schema.CreateClass(ctx, newClass(spec.Name, spec.Dimension, spec.Metric))
}

func (b *Backend) Upsert(ctx context.Context, index, namespace string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		props := make(map[string]interface{}, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			props[k] = v
		}
		props[propNamespace] = namespace
		props[propRecordID] = r.ID

		objects = append(objects, &models.Object{
			Class:      index,
			ID:         objectID(namespace, r.ID),
			Properties: props,
			Vector:     r.Values,
		})
	}

	resp, err := b.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	var failures []string
	for _, o := range resp {
		if o.Result == nil || o.Result.Errors == nil {
			continue
		}
		for _, e := range o.Result.Errors.Error {
			failures = append(failures, fmt.Sprintf("%s: %s", o.ID, e.Message))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("batch upsert rejected %d objects: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, index string, req vector.QueryRequest) ([]vector.Match, error) {
	fields := make([]graphql.Field, 0, len(chunkProperties)+1)
	for _, p := range chunkProperties {
		fields = append(fields, graphql.Field{Name: p.Name})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}})

	nearVector := b.client.GraphQL().NearVectorArgBuilder().WithVector(req.Vector)

	res, err := b.client.GraphQL().Get().
		WithClassName(index).
		WithNearVector(nearVector).
		WithWhere(buildWhere(req.Namespace, req.Filter)).
		WithLimit(req.TopK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("graphql error: %s", strings.Join(msgs, "; "))
	}

	matches := make([]vector.Match, 0)
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	objs, ok := data[index].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, o := range objs {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		m := vector.Match{Metadata: make(map[string]interface{})}
		for k, v := range props {
			switch k {
			case "_additional", propNamespace:
			case propRecordID:
				m.ID, _ = v.(string)
			default:
				if v != nil {
					m.Metadata[k] = normalize(v)
				}
			}
		}
		if add, ok := props["_additional"].(map[string]interface{}); ok {
			if m.ID == "" {
				m.ID, _ = add["id"].(string)
			}
			if d, ok := add["distance"].(float64); ok {
				m.Score = float32(1 - d)
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func buildWhere(namespace string, filter map[string]string) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{propNamespace}).
			WithOperator(filters.Equal).
			WithValueText(namespace),
	}
	for k, v := range filter {
		operands = append(operands, filters.Where().
			WithPath([]string{k}).
			WithOperator(filters.Equal).
			WithValueText(v))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// objectID derives a stable object UUID per namespace and record ID, so the
// same record written twice overwrites itself.
func objectID(namespace, id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+id)).String())
}

// normalize turns JSON numbers that hold whole values back into ints.
func normalize(v interface{}) interface{} {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int(f)
	}
	return v
}
