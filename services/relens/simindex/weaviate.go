// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// AnchorClassName is the Weaviate class holding snippet anchors.
const AnchorClassName = "SnippetAnchor"

// anchorBatchSize bounds a single batch import.
const anchorBatchSize = 100

// anchorSchema returns the SnippetAnchor class definition. Vectors are
// supplied by the caller, so the class vectorizer is disabled.
func anchorSchema() *models.Class {
	return &models.Class{
		Class:       AnchorClassName,
		Description: "Code snippet anchor for finding relocation",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "anchorId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "project", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "kind", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "commit", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "filePath", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "startLine", DataType: []string{"int"}},
			{Name: "endLine", DataType: []string{"int"}},
			{Name: "snippetHash", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "snippet", DataType: []string{"text"}},
		},
	}
}

// WeaviateIndex is the production similarity index: snippet anchors stored
// in Weaviate behind a ResilientClient, vectors computed by an Embedder.
//
// # Thread Safety
//
// Safe for concurrent use from multiple goroutines.
type WeaviateIndex struct {
	rc       *ResilientClient
	embedder Embedder
}

// NewWeaviateIndex constructs the index and ensures the anchor schema
// exists. Schema creation is idempotent.
func NewWeaviateIndex(ctx context.Context, rc *ResilientClient, embedder Embedder) (*WeaviateIndex, error) {
	if rc == nil {
		return nil, fmt.Errorf("%w: nil resilient client", ErrInvalidInput)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: nil embedder", ErrInvalidInput)
	}

	idx := &WeaviateIndex{rc: rc, embedder: embedder}
	err := rc.Execute(ctx, "ensure_schema", func(client *weaviate.Client) error {
		_, getErr := client.Schema().ClassGetter().WithClassName(AnchorClassName).Do(ctx)
		if getErr == nil {
			return nil
		}
		return client.Schema().ClassCreator().WithClass(anchorSchema()).Do(ctx)
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Embed delegates to the configured embedder.
func (w *WeaviateIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	return w.embedder.Embed(ctx, text)
}

// Insert stores records in batches. Records reusing an anchorId replace
// the previous anchor.
func (w *WeaviateIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.Payload.ID == "" {
			return fmt.Errorf("%w: record without id", ErrInvalidInput)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s without vector", ErrInvalidInput, r.Payload.ID)
		}
	}

	for i := 0; i < len(records); i += anchorBatchSize {
		end := i + anchorBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[i:end]

		objects := make([]*models.Object, len(batch))
		for j, r := range batch {
			objects[j] = &models.Object{
				Class:  AnchorClassName,
				Vector: models.C11yVector(r.Vector),
				Properties: map[string]interface{}{
					"anchorId":    r.Payload.ID,
					"project":     r.Payload.Project,
					"kind":        r.Payload.Kind,
					"commit":      r.Payload.Commit,
					"filePath":    r.Payload.FilePath,
					"startLine":   r.Payload.StartLine,
					"endLine":     r.Payload.EndLine,
					"snippetHash": r.Payload.SnippetHash,
					"snippet":     r.Payload.Snippet,
				},
			}
		}

		err := w.rc.Execute(ctx, "insert", func(client *weaviate.Client) error {
			// Replace any anchors that share an id with this batch.
			ids := make([]string, len(batch))
			for j, r := range batch {
				ids[j] = r.Payload.ID
			}
			_, delErr := client.Batch().ObjectsBatchDeleter().
				WithClassName(AnchorClassName).
				WithWhere(filters.Where().
					WithPath([]string{"anchorId"}).
					WithOperator(filters.ContainsAny).
					WithValueString(ids...)).
				Do(ctx)
			if delErr != nil {
				return fmt.Errorf("replacing anchors: %w", delErr)
			}

			result, batchErr := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
			if batchErr != nil {
				return fmt.Errorf("batch import: %w", batchErr)
			}
			for _, obj := range result {
				if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
					return fmt.Errorf("batch item rejected: %s", obj.Result.Errors.Error[0].Message)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Search runs a nearVector query and filters hits client-side by payload
// fields. Results are ordered by descending score.
func (w *WeaviateIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidInput)
	}
	if k <= 0 {
		k = 10
	}
	start := time.Now()

	// Over-fetch so client-side filtering still fills k results.
	fetchLimit := k * 3
	if fetchLimit < 30 {
		fetchLimit = 30
	}

	fields := []graphql.Field{
		{Name: "anchorId"},
		{Name: "project"},
		{Name: "kind"},
		{Name: "commit"},
		{Name: "filePath"},
		{Name: "startLine"},
		{Name: "endLine"},
		{Name: "snippetHash"},
		{Name: "snippet"},
		{Name: "_additional { certainty }"},
	}

	var hits []Hit
	err := w.rc.Execute(ctx, "search", func(client *weaviate.Client) error {
		nearVector := client.GraphQL().NearVectorArgBuilder().WithVector(vector)
		result, qErr := client.GraphQL().Get().
			WithClassName(AnchorClassName).
			WithFields(fields...).
			WithNearVector(nearVector).
			WithLimit(fetchLimit).
			Do(ctx)
		if qErr != nil {
			return fmt.Errorf("near vector query: %w", qErr)
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("near vector query: %s", result.Errors[0].Message)
		}
		hits = parseAnchorHits(result.Data, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	recordSearch(ctx, "weaviate", time.Since(start), len(hits))
	return hits, nil
}

// Delete removes the anchor with the given id. Unknown ids are a no-op.
func (w *WeaviateIndex) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidInput)
	}
	return w.rc.Execute(ctx, "delete", func(client *weaviate.Client) error {
		_, err := client.Batch().ObjectsBatchDeleter().
			WithClassName(AnchorClassName).
			WithWhere(filters.Where().
				WithPath([]string{"anchorId"}).
				WithOperator(filters.Equal).
				WithValueString(id)).
			Do(ctx)
		return err
	})
}

// parseAnchorHits converts a GraphQL response into filtered hits.
func parseAnchorHits(data map[string]models.JSONObject, filter Filter) []Hit {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[AnchorClassName].([]interface{})
	if !ok {
		return nil
	}

	hits := make([]Hit, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		p := Payload{
			ID:          getString(m, "anchorId"),
			Project:     getString(m, "project"),
			Kind:        getString(m, "kind"),
			Commit:      getString(m, "commit"),
			FilePath:    getString(m, "filePath"),
			StartLine:   getInt(m, "startLine"),
			EndLine:     getInt(m, "endLine"),
			SnippetHash: getString(m, "snippetHash"),
			Snippet:     getString(m, "snippet"),
		}
		if !filter.Matches(p) {
			continue
		}
		hits = append(hits, Hit{Payload: p, Score: getCertainty(m)})
	}
	return hits
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 0
}

func getCertainty(m map[string]interface{}) float64 {
	additional, ok := m["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	if c, ok := additional["certainty"].(float64); ok {
		return c
	}
	return 0
}
