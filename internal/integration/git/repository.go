package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git subcommands against a working directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs the git executable found on PATH.
type ExecRunner struct{}

// Run executes `git -C dir args...` and returns its standard output.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return newGitCommand(dir, args...).run(ctx)
}

// gitCommand represents one git invocation.
type gitCommand struct {
	dir  string
	args []string
}

// newGitCommand creates a new git command.
func newGitCommand(dir string, args ...string) *gitCommand {
	return &gitCommand{dir: dir, args: args}
}

// run executes the git command.
func (c *gitCommand) run(ctx context.Context) (string, error) {
	args := c.args
	if c.dir != "" {
		args = append([]string{"-C", c.dir}, c.args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(c.args, " "), strings.TrimSpace(stderr.String()), err)
	}

	return stdout.String(), nil
}
