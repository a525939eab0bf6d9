// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	project    string
	repoPath   string

	rootCmd = &cobra.Command{
		Use:   "relens",
		Short: "Incremental re-analysis over git history",
		Long: `Relens tracks analysis findings across commits: it diffs a baseline
against a target commit, cascades the impact through the chunk graph,
re-anchors findings onto moved code, and merges re-analysis results
into versioned snapshots with trust scores.`,
		SilenceUsage: true,
	}

	// --- Delta / Cascade ---
	deltaCmd = &cobra.Command{
		Use:   "delta [baseline-snapshot-id] [target-commit]",
		Short: "Compute the affected chunk set between a baseline snapshot and a commit",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelta, // Defined in cmd_delta.go
	}

	cascadeCmd = &cobra.Command{
		Use:   "cascade [chunk-id...]",
		Short: "Propagate impact from dirty chunks through the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCascade, // Defined in cmd_cascade.go
	}

	// --- Branches ---
	branchCmd = &cobra.Command{
		Use:   "branch",
		Short: "Manage analysis branches",
	}
	branchCreateCmd = &cobra.Command{
		Use:   "create [git-branch]",
		Short: "Create an analysis branch tracking a git branch",
		Args:  cobra.ExactArgs(1),
		RunE:  runBranchCreate, // Defined in cmd_branch.go
	}
	branchListCmd = &cobra.Command{
		Use:   "list",
		Short: "List analysis branches for the project",
		Args:  cobra.NoArgs,
		RunE:  runBranchList, // Defined in cmd_branch.go
	}
	branchDeleteCmd = &cobra.Command{
		Use:   "delete [branch-id]",
		Short: "Delete an analysis branch (snapshots stay addressable)",
		Args:  cobra.ExactArgs(1),
		RunE:  runBranchDelete, // Defined in cmd_branch.go
	}

	// --- Snapshots ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect analysis snapshots",
	}
	snapshotShowCmd = &cobra.Command{
		Use:   "show [snapshot-id]",
		Short: "Show one snapshot, or the latest on a branch with --branch",
		RunE:  runSnapshotShow, // Defined in cmd_snapshot.go
	}
)

// Flags local to subcommands.
var (
	branchBase      string
	branchForkPoint string
	snapshotBranch  string
	cascadeDepth    int
	cascadeWeight   float64
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.relens.yaml)")
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "project scope (overrides config)")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", "", "git repository path (overrides config)")

	branchCreateCmd.Flags().StringVar(&branchBase, "base", "main", "git branch this one forked from")
	branchCreateCmd.Flags().StringVar(&branchForkPoint, "fork-point", "", "commit hash where the branch diverged")
	snapshotShowCmd.Flags().StringVar(&snapshotBranch, "branch", "", "show the latest snapshot on this branch id")
	cascadeCmd.Flags().IntVar(&cascadeDepth, "depth", 0, "max BFS depth (0 = default)")
	cascadeCmd.Flags().Float64Var(&cascadeWeight, "min-weight", 0, "min edge weight (0 = default)")

	branchCmd.AddCommand(branchCreateCmd, branchListCmd, branchDeleteCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	rootCmd.AddCommand(deltaCmd, cascadeCmd, branchCmd, snapshotCmd)
}
