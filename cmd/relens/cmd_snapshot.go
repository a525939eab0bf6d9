// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relens-ai/relens/services/relens/engine"
)

// runSnapshotShow prints one snapshot by id, or the branch head with
// --branch.
func runSnapshotShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 0 && snapshotBranch == "" {
		return fmt.Errorf("provide a snapshot id or --branch")
	}

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var resp engine.SnapshotResponse
	if snapshotBranch != "" {
		resp = eng.LatestSnapshot(ctx, config.Project, snapshotBranch)
	} else {
		resp = eng.GetSnapshot(ctx, config.Project, args[0])
	}
	if !resp.OK {
		return operationError(resp.OperationResult)
	}
	return printJSON(resp.Snapshot)
}
