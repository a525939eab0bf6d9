// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/relens-ai/relens/pkg/validation"
	"github.com/relens-ai/relens/services/relens/engine"
)

// runDelta computes the delta manifest between a baseline snapshot and a
// target commit and prints it as JSON.
func runDelta(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := validation.ValidateCommit(args[1]); err != nil {
		return err
	}

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp := eng.ComputeDelta(ctx, engine.DeltaRequest{
		Project:      config.Project,
		BaselineID:   args[0],
		TargetCommit: args[1],
	})
	if !resp.OK {
		return operationError(resp.OperationResult)
	}
	return printJSON(resp.Manifest)
}
