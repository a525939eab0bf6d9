// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/relens-ai/relens/services/relens/cascade"
	"github.com/relens-ai/relens/services/relens/engine"
)

// runCascade propagates impact from the given dirty chunks and prints
// the affected set with its stats.
func runCascade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := cascade.DefaultOptions()
	if cascadeDepth > 0 {
		opts.MaxDepth = cascadeDepth
	}
	if cascadeWeight > 0 {
		opts.MinEdgeWeight = cascadeWeight
	}

	resp := eng.Propagate(ctx, engine.PropagateRequest{
		Project:     config.Project,
		DirtyChunks: args,
		Options:     &opts,
	})
	if !resp.OK {
		return operationError(resp.OperationResult)
	}
	return printJSON(resp.Result)
}
