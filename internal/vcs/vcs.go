// Package vcs is a thin adapter over the git binary for the vcs tool's
// envelope contract (spec.md §1 keeps only the envelope interface in
// scope, not a full git porcelain). Directly adapted from the teacher's
// internal/git (branch.go, merge.go, diff.go): same exec.Command(...).Dir
// = workspace / CombinedOutput() / wrapped-error idiom, reduced to the
// read-only + branch/merge ops the registry needs.
package vcs

import (
	"fmt"
	"os/exec"
	"strings"
)

// Status reports the working tree's branch and dirty state.
type Status struct {
	Branch string
	Dirty  bool
	Files  []string
}

func run(workspace string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workspace
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("vcs: git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// GetStatus returns the current branch and porcelain status lines.
func GetStatus(workspace string) (Status, error) {
	branchOut, err := run(workspace, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Status{}, err
	}
	branch := strings.TrimSpace(branchOut)

	porcelain, err := run(workspace, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}
	var files []string
	for _, line := range strings.Split(porcelain, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return Status{Branch: branch, Dirty: len(files) > 0, Files: files}, nil
}

// Diff returns the working tree diff, optionally scoped to a ref range.
func Diff(workspace, refRange string) (string, error) {
	args := []string{"diff"}
	if refRange != "" {
		args = append(args, refRange)
	}
	return run(workspace, args...)
}

// BranchExists reports whether branch already exists locally.
func BranchExists(workspace, branch string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = workspace
	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("vcs: check branch %q exists: %w", branch, err)
	}
	return true, nil
}

// CreateBranch creates and checks out branch from baseBranch.
func CreateBranch(workspace, branch, baseBranch string) error {
	exists, err := BranchExists(workspace, branch)
	if err != nil {
		return err
	}
	if exists {
		_, err := run(workspace, "checkout", branch)
		return err
	}
	args := []string{"checkout", "-b", branch}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	_, err = run(workspace, args...)
	return err
}

// Merge merges fromBranch into the current checkout, reporting whether
// the merge left conflict markers for the caller to resolve.
type MergeResult struct {
	Conflicted bool
	Output     string
}

func Merge(workspace, fromBranch string) (MergeResult, error) {
	cmd := exec.Command("git", "merge", "--no-edit", fromBranch)
	cmd.Dir = workspace
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		if strings.Contains(output, "CONFLICT") {
			return MergeResult{Conflicted: true, Output: output}, nil
		}
		return MergeResult{}, fmt.Errorf("vcs: merge %q: %w (%s)", fromBranch, err, strings.TrimSpace(output))
	}
	return MergeResult{Output: output}, nil
}
