package attest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	checkMark = green("✓")
	crossMark = red("✗")
)

// logTail is how many lines of each container's output an aborted
// scenario prints.
const logTail = 20

// Suite runs scenarios in declaration order and stops at the first failure.
type Suite struct {
	setupFn   func(context.Context) error
	scenarios []*scenario.Scenario
	config    *Config
	backend   BackendFactory
	out       io.Writer

	cleanupFailures []string
}

// New creates a new empty suite
func New() *Suite {
	return &Suite{out: os.Stdout}
}

// WithConfig sets the configuration for the suite
func (s *Suite) WithConfig(config *Config) *Suite {
	s.config = merge(config)
	return s
}

// WithBackend sets how each scenario's containers are provisioned
func (s *Suite) WithBackend(factory BackendFactory) *Suite {
	s.backend = factory
	return s
}

// Output redirects the suite report
func (s *Suite) Output(w io.Writer) *Suite {
	s.out = w
	return s
}

// Setup adds a function that runs once before all scenarios
func (s *Suite) Setup(fn func(context.Context) error) *Suite {
	s.setupFn = fn
	return s
}

// Test adds scenarios to the suite
func (s *Suite) Test(scenarios ...scenario.Scenario) *Suite {
	for i := range scenarios {
		s.scenarios = append(s.scenarios, &scenarios[i])
	}
	return s
}

// CleanupFailures returns the teardown errors of the last run.
func (s *Suite) CleanupFailures() []string {
	return slices.Clone(s.cleanupFailures)
}

// Run executes the suite and reports whether every scenario passed
func (s *Suite) Run(ctx context.Context) bool {
	config := s.config
	if config == nil {
		config = DefaultConfig()
	}

	if s.backend == nil {
		panic("suite has no backend")
	}

	s.cleanupFailures = nil

	if s.setupFn != nil {
		if err := s.setupFn(ctx); err != nil {
			fmt.Fprintf(s.out, "%s %s\n", crossMark, "SETUP")
			fmt.Fprintf(s.out, "\n%s\n", err)
			fmt.Fprintf(s.out, "\n%s %s\n", bold("FAILED"), crossMark)
			return false
		}
	}

	// Run each scenario, stopping on first failure or cancellation
	failed := false
	for _, sc := range s.scenarios {
		select {
		case <-ctx.Done():
			failed = true
		default:
		}

		if failed {
			break
		}

		v := s.runScenario(ctx, config, sc)
		s.report(v)

		if !v.Passed() {
			failed = true
		}
	}

	if len(s.cleanupFailures) > 0 {
		fmt.Fprintf(s.out, "\n%s\n", yellow("Cleanup failures:"))
		for _, f := range s.cleanupFailures {
			fmt.Fprintf(s.out, "  %s\n", strings.ReplaceAll(f, "\n", "\n  "))
		}
	}

	if failed {
		fmt.Fprintf(s.out, "\n%s %s\n", bold("FAILED"), crossMark)
	} else {
		fmt.Fprintf(s.out, "\n%s %s\n", bold("PASSED"), checkMark)
	}

	return !failed
}

// runScenario provisions a fresh backend, executes sc, and always tears the
// backend down before returning.
func (s *Suite) runScenario(ctx context.Context, config *Config, sc *scenario.Scenario) *Verdict {
	slog.Debug("Running scenario", "id", sc.ID, "run", config.RunID)

	backend, err := s.backend(ctx, config, sc)
	do := newDo(ctx, config, backend)
	defer func() {
		if err := do.Done(); err != nil {
			slog.Warn("Teardown failed", "scenario", sc.ID, "error", err)
			s.cleanupFailures = append(s.cleanupFailures, fmt.Sprintf("%s: %v", sc.ID, err))
		}
	}()

	if err != nil {
		return &Verdict{
			Scenario:  sc,
			State:     StateAborted,
			AbortedIn: StateProvisioning,
			Err:       fmt.Errorf("failed to provision: %w", err),
			Logs:      do.Logs(),
		}
	}

	return Execute(do, sc)
}

func (s *Suite) report(v *Verdict) {
	sc := v.Scenario
	if v.Passed() {
		fmt.Fprintf(s.out, "%s %s %s %s\n", checkMark, bold("PASS"), sc.ID, faint(sc.Title()))
		return
	}

	fmt.Fprintf(s.out, "%s %s %s %s\n", crossMark, bold("FAIL"), sc.ID, faint(sc.Title()))

	for _, m := range v.Mismatches {
		fmt.Fprintf(s.out, "\n  %s\n", strings.ReplaceAll(m.String(), "\n", "\n  "))
	}

	if v.State == StateAborted {
		fmt.Fprintf(s.out, "\n  Aborted during %s:\n  %s\n", v.AbortedIn,
			strings.ReplaceAll(v.Err.Error(), "\n", "\n  "))

		names := make([]string, 0, len(v.Logs))
		for name := range v.Logs {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			lines := v.Logs[name]
			if len(lines) > logTail {
				lines = lines[len(lines)-logTail:]
			}
			fmt.Fprintf(s.out, "\n  %s\n", yellow(name+" output:"))
			for _, line := range lines {
				fmt.Fprintf(s.out, "    %s\n", line)
			}
		}
	}

	if v.Snapshot != nil && !v.Snapshot.Passed {
		fmt.Fprintf(s.out, "\n  %s\n", yellow("Snapshot verification failed. Tool output:"))
		if len(v.Snapshot.Log) == 0 {
			fmt.Fprintf(s.out, "    %s\n", "(no output)")
		}
		for _, line := range v.Snapshot.Log {
			fmt.Fprintf(s.out, "    %s\n", line)
		}
	}

	fmt.Fprintln(s.out)
}
