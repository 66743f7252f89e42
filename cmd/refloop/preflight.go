package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// runPreflightChecks verifies the target directory and resolves the agent
// CLI for provider. It returns the concrete provider name.
func runPreflightChecks(target, provider string, resolve func(string) (string, error)) (string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("target %s: %w", target, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("target %s is not a directory", target)
	}

	resolved, err := resolve(provider)
	if err != nil {
		return "", fmt.Errorf("%w; install codex or claude, or pick another --provider", err)
	}
	return resolved, nil
}

// gitWarning returns a warning when target is not inside a git work tree.
// Agent edits there cannot be reviewed or reverted with git.
func gitWarning(ctx context.Context, target string) string {
	if _, err := exec.LookPath("git"); err != nil {
		return "git not found in PATH; agent edits will not be reviewable with git"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = target
	if err := cmd.Run(); err != nil {
		return target + " is not a git work tree; agent edits will not be reviewable with git"
	}
	return ""
}
