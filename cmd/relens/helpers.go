// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/relens-ai/relens/pkg/validation"
	"github.com/relens-ai/relens/services/relens/engine"
	"github.com/relens-ai/relens/services/relens/gitio"
	"github.com/relens-ai/relens/services/relens/simindex"
	"github.com/relens-ai/relens/services/relens/store"
	"github.com/relens-ai/relens/services/relens/telemetry"
)

// buildEngine assembles the engine from the loaded config. The returned
// cleanup closes the store and flushes telemetry.
func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	if config.Project == "" {
		return nil, nil, fmt.Errorf("project is required (set --project or project: in the config)")
	}
	if err := validation.ValidateProject(config.Project); err != nil {
		return nil, nil, err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, config.Telemetry)
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}

	recordStore, err := store.Open(store.DefaultConfig(expandHome(config.StoreDir)))
	if err != nil {
		shutdownCleanup(ctx, shutdownTelemetry)
		return nil, nil, fmt.Errorf("open record store: %w", err)
	}

	git, err := gitio.Open(config.Repo)
	if err != nil {
		_ = recordStore.Close()
		shutdownCleanup(ctx, shutdownTelemetry)
		return nil, nil, fmt.Errorf("open git repository %s: %w", config.Repo, err)
	}

	index, err := buildIndex(ctx)
	if err != nil {
		_ = recordStore.Close()
		shutdownCleanup(ctx, shutdownTelemetry)
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Store: recordStore,
		Git:   git,
		Index: index,
	})
	if err != nil {
		_ = recordStore.Close()
		shutdownCleanup(ctx, shutdownTelemetry)
		return nil, nil, err
	}

	cleanup := func() {
		_ = recordStore.Close()
		shutdownCleanup(ctx, shutdownTelemetry)
	}
	return eng, cleanup, nil
}

// buildIndex picks the similarity index backend: Weaviate when a URL is
// configured, otherwise the in-memory index.
func buildIndex(ctx context.Context) (simindex.Index, error) {
	embedder, err := buildEmbedder()
	if err != nil {
		return nil, err
	}

	if config.Weaviate.URL == "" {
		return simindex.NewMemoryIndex(embedder), nil
	}

	clientCfg := simindex.DefaultClientConfig()
	clientCfg.URL = config.Weaviate.URL
	rc, err := simindex.NewResilientClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to weaviate %s: %w", config.Weaviate.URL, err)
	}
	return simindex.NewWeaviateIndex(ctx, rc, embedder)
}

// buildEmbedder picks the embedding backend from the config.
func buildEmbedder() (simindex.Embedder, error) {
	switch config.Embedder.Backend {
	case "", "hash":
		return &simindex.HashEmbedder{}, nil
	case "openai":
		if config.Embedder.Model != "" {
			os.Setenv("EMBEDDING_MODEL", config.Embedder.Model)
		}
		if config.Embedder.Endpoint != "" {
			os.Setenv("EMBEDDING_BASE_URL", config.Embedder.Endpoint)
		}
		return simindex.NewOpenAIEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", config.Embedder.Backend)
	}
}

func shutdownCleanup(ctx context.Context, shutdown func(context.Context) error) {
	if shutdown != nil {
		_ = shutdown(ctx)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// operationError converts a failed OperationResult into a CLI error.
func operationError(result engine.OperationResult) error {
	return fmt.Errorf("%s: %s", result.ErrorKind, result.Message)
}
