// Package snapshot verifies persisted store state. It forces every store to
// save, then delegates normalization and diffing of the dump files to an
// external tool and reduces the tool's output to pass or fail.
package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

// Saver is a store connection able to persist synchronously.
type Saver interface {
	Save(ctx context.Context) *redis.StatusCmd
}

// ForceSave issues SAVE on every store concurrently and returns once all of
// them have completed.
func ForceSave(ctx context.Context, stores map[string]Saver) error {
	p := pool.New().WithErrors().WithContext(ctx)
	for name, store := range stores {
		p.Go(func(ctx context.Context) error {
			if err := store.Save(ctx).Err(); err != nil {
				return fmt.Errorf("failed to save %s: %w", name, err)
			}
			return nil
		})
	}

	return p.Wait()
}

// Pair is an actual dump and the oracle dump it must match.
type Pair struct {
	Actual   string
	Expected string
}

// DefaultPairs compares source and destination against their oracles.
func DefaultPairs() []Pair {
	return []Pair{
		{Actual: topology.Source.Dump(), Expected: topology.SourceExpected.Dump()},
		{Actual: topology.Destination.Dump(), Expected: topology.DestinationExpected.Dump()},
	}
}

// ToolRunner runs a one-shot command in the tool container and returns its
// output lines.
type ToolRunner interface {
	RunTool(ctx context.Context, cmd []string) ([]string, error)
}

// Verifier runs the normalize and diff tool over the shared mount.
type Verifier struct {
	Runner    ToolRunner
	MountPath string
	Pairs     []Pair
}

// Result is the outcome of one verification.
type Result struct {
	Passed bool
	// Log is everything the tool printed.
	Log []string
}

// Command builds the shell invocation. Each dump is normalized into a sorted
// sibling .txt file, both pairs are diffed, and the last line printed is the
// exit status of the diffs.
func (v *Verifier) Command() []string {
	var script strings.Builder
	var diffs []string

	for _, p := range v.Pairs {
		for _, dump := range []string{p.Actual, p.Expected} {
			file := path.Join(v.MountPath, dump)
			fmt.Fprintf(&script, "rdb --command diff %s | sort > %s.txt\n", file, file)
		}

		diffs = append(diffs, fmt.Sprintf("diff %s.txt %s.txt",
			path.Join(v.MountPath, p.Actual), path.Join(v.MountPath, p.Expected)))
	}

	script.WriteString(strings.Join(diffs, " && "))
	script.WriteString("; echo $?\n")

	return []string{"/bin/sh", "-c", script.String()}
}

// NormalizeAndDiff runs the tool once. An error means the tool could not be
// run at all; a tool that ran and reported differences is a failed Result.
func (v *Verifier) NormalizeAndDiff(ctx context.Context) (*Result, error) {
	lines, err := v.Runner.RunTool(ctx, v.Command())
	if err != nil {
		return nil, fmt.Errorf("failed to run verification tool: %w", err)
	}

	return &Result{Passed: ParseStatus(lines), Log: lines}, nil
}

// ParseStatus reports whether the last non-empty line is "0". Empty output
// is a failure.
func ParseStatus(lines []string) bool {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return line == "0"
	}

	return false
}
