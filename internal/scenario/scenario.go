// Package scenario describes given/when/then scenarios run against the
// migration proxy: the fixtures loaded before a run, the requests sent through
// the proxy with their expected replies, and the oracle state the stores must
// end up in.
package scenario

import (
	"fmt"
	"regexp"
	"strings"
)

// Command is a store command with positional arguments.
type Command struct {
	Name string
	Args []any
}

// Cmd builds a command from a name and its arguments.
func Cmd(name string, args ...any) Command {
	return Command{Name: name, Args: args}
}

// NewCommand builds a command from a name and an argument value that may be
// a single scalar, a list, or nil. A scalar is a one-element argument list.
func NewCommand(name string, args any) Command {
	switch v := args.(type) {
	case nil:
		return Command{Name: name}
	case []any:
		return Command{Name: name, Args: append([]any(nil), v...)}
	case []string:
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		return Command{Name: name, Args: list}
	default:
		return Command{Name: name, Args: []any{v}}
	}
}

// Argv returns the command name followed by its arguments, ready to be sent
// over the wire.
func (c Command) Argv() []any {
	argv := make([]any, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

func (c Command) String() string {
	parts := []string{strings.ToUpper(c.Name)}
	for _, arg := range c.Args {
		parts = append(parts, canonical(arg))
	}

	return strings.Join(parts, " ")
}

// Data holds the fixture commands for the source and destination side.
type Data struct {
	Src []Command `yaml:"src"`
	Dst []Command `yaml:"dst"`
}

// Step is a single request sent through the proxy with its expectations.
type Step struct {
	Req Command
	// Resp is the expected reply. Nil means the reply value is not checked.
	Resp *Reply
	// RespError is true when the request is expected to fail.
	RespError bool
}

// When starts a step for the given request.
func When(name string, args ...any) Step {
	return Step{Req: Cmd(name, args...)}
}

// Returns sets the expected reply. A nil value expects the absent reply.
func (s Step) Returns(value any) Step {
	r := ReplyOf(value)
	s.Resp = &r
	return s
}

// Fails marks the step as expected to fail.
func (s Step) Fails() Step {
	s.RespError = true
	return s
}

// Test is the given/when/then definition of a scenario.
type Test struct {
	GivenConfig     map[string]any `yaml:"given_config,omitempty"`
	GivenData       Data           `yaml:"given_data"`
	WhenReqThenResp []Step         `yaml:"when_req_then_resp,omitempty"`
	ThenData        Data           `yaml:"then_data"`
}

// Scenario is one unit of the suite.
type Scenario struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Test Test   `yaml:"test"`
}

// Description returns the scenario name with surrounding blank lines removed,
// the common indentation stripped, and nested indentation rewritten as two
// spaces per level. YAML block scalars do not allow tab indentation.
func (s *Scenario) Description() string {
	lines := strings.Split(strings.Trim(s.Name, "\n"), "\n")

	common := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if n := len(line) - len(strings.TrimLeft(line, " \t")); common < 0 || n < common {
			common = n
		}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}

		line = line[common:]
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = strings.Repeat("  ", strings.Count(indent, "\t")) +
			strings.ReplaceAll(indent, "\t", "") + strings.TrimRight(line[len(indent):], " \t")
	}

	return strings.Join(lines, "\n")
}

// Title returns the scenario name collapsed onto a single line.
func (s *Scenario) Title() string {
	return strings.Join(strings.Fields(s.Name), " ")
}

// Container, network and volume names are derived from the id, so it has to
// satisfy the container runtime's naming rules.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks the scenario for problems that would only surface once
// containers are already running.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario id cannot be empty")
	}

	if !idPattern.MatchString(s.ID) {
		return fmt.Errorf("scenario %s: id must match %s", s.ID, idPattern)
	}

	lists := map[string][]Command{
		"given_data.src": s.Test.GivenData.Src,
		"given_data.dst": s.Test.GivenData.Dst,
		"then_data.src":  s.Test.ThenData.Src,
		"then_data.dst":  s.Test.ThenData.Dst,
	}
	for where, cmds := range lists {
		for i, cmd := range cmds {
			if cmd.Name == "" {
				return fmt.Errorf("scenario %s: %s[%d]: command name cannot be empty", s.ID, where, i)
			}
		}
	}

	for i, step := range s.Test.WhenReqThenResp {
		if step.Req.Name == "" {
			return fmt.Errorf("scenario %s: when_req_then_resp[%d]: request cannot be empty", s.ID, i)
		}
	}

	return nil
}

// ValidateAll validates every scenario and checks that ids are unique.
func ValidateAll(scenarios []Scenario) error {
	seen := make(map[string]bool, len(scenarios))
	for i := range scenarios {
		sc := &scenarios[i]
		if err := sc.Validate(); err != nil {
			return err
		}

		if seen[sc.ID] {
			return fmt.Errorf("duplicate scenario id %s", sc.ID)
		}
		seen[sc.ID] = true
	}

	return nil
}
