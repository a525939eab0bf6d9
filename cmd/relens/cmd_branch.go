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

	"github.com/relens-ai/relens/pkg/validation"
	"github.com/relens-ai/relens/services/relens/branch"
)

// runBranchCreate registers an analysis branch tracking a git branch.
func runBranchCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := validation.ValidateBranchName(args[0]); err != nil {
		return err
	}
	if branchForkPoint != "" {
		if err := validation.ValidateCommit(branchForkPoint); err != nil {
			return err
		}
	}

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp := eng.CreateBranch(ctx, branch.CreateRequest{
		Project:    config.Project,
		GitBranch:  args[0],
		BaseBranch: branchBase,
		ForkPoint:  branchForkPoint,
	})
	if !resp.OK {
		return operationError(resp.OperationResult)
	}
	return printJSON(resp.Branch)
}

// runBranchList prints every analysis branch of the project.
func runBranchList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp := eng.ListBranches(ctx, config.Project)
	if !resp.OK {
		return operationError(resp.OperationResult)
	}
	return printJSON(resp.Branches)
}

// runBranchDelete marks a branch deleted. Its snapshots stay addressable.
func runBranchDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result := eng.DeleteBranch(ctx, config.Project, args[0])
	if !result.OK {
		return operationError(result)
	}
	fmt.Println("deleted", args[0])
	return nil
}
