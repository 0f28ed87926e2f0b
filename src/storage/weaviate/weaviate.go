package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	DefaultClassName  = "DocumentChunk"
	DefaultQueryLimit = 20

	propDocumentName = "documentName"
	propChunkIndex   = "chunkIndex"
	propText         = "text"
	propPageNumbers  = "pageNumbers"
	propZeroNorm     = "zeroNorm"
)

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// NewClient connects to a Weaviate instance at host ("localhost:8080").
func NewClient(scheme, host string) (*weaviate.Client, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return client, nil
}

// ChunkProperties is the schema of the chunk class. Vectors are supplied by
// the caller.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: propDocumentName, DataType: []string{"text"}},
		{Name: propChunkIndex, DataType: []string{"int"}},
		{Name: propText, DataType: []string{"text"}},
		{Name: propPageNumbers, DataType: []string{"int[]"}},
		{Name: propZeroNorm, DataType: []string{"boolean"}},
	}
}

// EnsureSchema creates className with cosine distance unless it exists.
func (w *SDK) EnsureSchema(ctx context.Context, className string, properties []*models.Property) error {
	exists, err := w.classExists(ctx, className)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:             className,
		Properties:        properties,
		Vectorizer:        "none",
		VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
	}

	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create Weaviate class: %w", err)
	}
	return nil
}

// classExists checks if a class exists in the schema
func (w *SDK) classExists(ctx context.Context, className string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %w", err)
	}

	for _, class := range schema.Classes {
		if class.Class == className {
			return true, nil
		}
	}
	return false, nil
}

// VectorObject represents a single object with its vector and properties
type VectorObject struct {
	Vector     []float32
	Properties map[string]interface{}
}

// AddVector adds a single vector object to a class. An object without a vector
// is stored but never returned by QueryVectors.
func (w *SDK) AddVector(ctx context.Context, className string, object VectorObject) error {
	creator := w.client.Data().Creator().
		WithClassName(className).
		WithProperties(object.Properties)
	if len(object.Vector) > 0 {
		creator = creator.WithVector(object.Vector)
	}
	_, err := creator.Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to add vector: %w", err)
	}
	return nil
}

// DeleteByDocument removes every object of documentName from a class.
func (w *SDK) DeleteByDocument(ctx context.Context, className, documentName string) error {
	_, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithWhere(documentFilter(documentName)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete vectors of %s: %w", documentName, err)
	}
	return nil
}

// QueryConfig represents configuration for vector similarity search
type QueryConfig struct {
	Fields       []string // Fields to return in the result
	Limit        int      // Maximum number of results
	DocumentName string   // Restrict results to one document when set
	Distance     float64  // Maximum cosine distance when positive
}

// QueryResult represents a single result from vector similarity search
type QueryResult struct {
	ID         string
	Distance   float64
	Properties map[string]interface{}
}

// QueryVectors performs vector similarity search in a class
func (w *SDK) QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error) {
	fields := make([]graphql.Field, len(config.Fields))
	for i, field := range config.Fields {
		fields[i] = graphql.Field{Name: field}
	}
	fields = append(fields, graphql.Field{Name: "_additional { id distance }"})

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	if config.Distance > 0 {
		nearVector = nearVector.WithDistance(float32(config.Distance))
	}

	if config.Limit <= 0 {
		config.Limit = DefaultQueryLimit
	}

	get := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(config.Limit)
	if config.DocumentName != "" {
		get = get.WithWhere(documentFilter(config.DocumentName))
	}

	result, err := get.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query vectors: %s", result.Errors[0].Message)
	}

	return parseGetResults(result.Data, className), nil
}

// QueryZeroNorm returns the objects of documentName stored without a usable
// vector, lowest chunk index first.
func (w *SDK) QueryZeroNorm(ctx context.Context, className, documentName string, limit int) ([]QueryResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			documentFilter(documentName),
			filters.Where().
				WithPath([]string{propZeroNorm}).
				WithOperator(filters.Equal).
				WithValueBoolean(true),
		})

	result, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(graphql.Field{Name: propChunkIndex}, graphql.Field{Name: "_additional { id }"}).
		WithWhere(where).
		WithSort(graphql.Sort{Path: []string{propChunkIndex}, Order: graphql.Asc}).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query zero-norm vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query zero-norm vectors: %s", result.Errors[0].Message)
	}

	return parseGetResults(result.Data, className), nil
}

func documentFilter(documentName string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{propDocumentName}).
		WithOperator(filters.Equal).
		WithValueText(documentName)
}

// parseGetResults extracts objects of className from a GraphQL Get response.
// Malformed entries are skipped.
func parseGetResults(data map[string]models.JSONObject, className string) []QueryResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	var results []QueryResult
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := objMap["_additional"].(map[string]interface{})

		properties := make(map[string]interface{})
		for k, v := range objMap {
			if k != "_additional" {
				properties[k] = v
			}
		}

		id, _ := additional["id"].(string)
		distance, _ := additional["distance"].(float64)
		results = append(results, QueryResult{
			ID:         id,
			Distance:   distance,
			Properties: properties,
		})
	}
	return results
}
