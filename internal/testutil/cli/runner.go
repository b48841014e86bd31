// Package cli executes cobra commands in tests and asserts on their
// captured output.
//
//	result := cli.Run(newVersionCmd(), "--check")
//	result.AssertSuccess(t)
//	result.AssertContains(t, "keyplanectl version")
package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// Result captures one command execution.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes cmd with args, capturing stdout and stderr.
func Run(cmd *cobra.Command, args ...string) *Result {
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	// cobra's Execute always runs from the root of the command tree, so
	// for an attached subcommand the args must be set on the root with
	// the subcommand's path prepended; otherwise the root falls back to
	// os.Args[1:], which in tests holds the -test.* flags.
	root := cmd.Root()
	if root != cmd {
		var path []string
		for c := cmd; c.HasParent(); c = c.Parent() {
			path = append([]string{c.Name()}, path...)
		}
		args = append(path, args...)
		root.SetOut(&stdout)
		root.SetErr(&stderr)
	}
	root.SetArgs(args)

	err := root.Execute()

	return &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// AssertSuccess fails the test if the command returned an error.
func (r *Result) AssertSuccess(t *testing.T) {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("command failed: %v\nstdout: %s\nstderr: %s", r.Err, r.Stdout, r.Stderr)
	}
}

// AssertError fails the test if the command succeeded.
func (r *Result) AssertError(t *testing.T) {
	t.Helper()
	if r.Err == nil {
		t.Fatalf("command succeeded unexpectedly\nstdout: %s", r.Stdout)
	}
}

// AssertContains fails the test if stdout does not contain want.
func (r *Result) AssertContains(t *testing.T, want string) {
	t.Helper()
	if !strings.Contains(r.Stdout, want) {
		t.Errorf("stdout missing %q:\n%s", want, r.Stdout)
	}
}

// AssertNotContains fails the test if stdout contains unwanted.
func (r *Result) AssertNotContains(t *testing.T, unwanted string) {
	t.Helper()
	if strings.Contains(r.Stdout, unwanted) {
		t.Errorf("stdout unexpectedly contains %q:\n%s", unwanted, r.Stdout)
	}
}

// AssertPrefix fails the test if trimmed stdout does not start with want.
func (r *Result) AssertPrefix(t *testing.T, want string) {
	t.Helper()
	if !strings.HasPrefix(strings.TrimSpace(r.Stdout), want) {
		t.Errorf("stdout does not start with %q:\n%s", want, r.Stdout)
	}
}
