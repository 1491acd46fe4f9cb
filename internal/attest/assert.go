package attest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/st3v3nmw/mirrorcheck/internal/replay"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

// eventually checks that the condition becomes true within the given period.
func eventually(ctx context.Context, condition func() bool, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}

	return false
}

// Assert defines the interface for executing and validating test assertions.
type Assert interface {
	// Assert executes the operation and aborts the scenario on failure.
	Assert(help string)
	// execute executes the operation once and returns whether it meets expectations.
	execute() bool
	// formatHelp formats help text with proper indentation for error messages.
	formatHelp() string
}

var _ Assert = (*RedisAssert)(nil)
var _ Assert = (*HTTPAssert)(nil)

// AssertBase provides common assertion functionality.
type AssertBase struct {
	help string

	config *Config
}

func (a *AssertBase) formatHelp() string {
	if a.help == "" {
		return ""
	}

	return "\n\n  " + strings.ReplaceAll(a.help, "\n", "\n  ")
}

// Mismatch is an expectation that a command's outcome did not meet.
type Mismatch struct {
	// Label names the step, e.g. "step #2".
	Label    string
	Command  string
	Expected string
	Actual   string
	Hint     string
}

func (m Mismatch) String() string {
	var b strings.Builder
	if m.Label != "" {
		fmt.Fprintf(&b, "%s: ", m.Label)
	}
	fmt.Fprintf(&b, "%s\n  Expected: %s\n  Actual: %s", m.Command, m.Expected, m.Actual)
	if m.Hint != "" {
		fmt.Fprintf(&b, "\n  %s", m.Hint)
	}

	return b.String()
}

// respErrorHint is shown when a request failed but no failure was expected.
const respErrorHint = `Hint: set "respError": true if this request is expected to fail.`

// RedisAssert classifies the outcome of one command against the expected
// reply or failure.
type RedisAssert struct {
	AssertBase

	promise *RedisPromise
	reply   scenario.Reply
	err     error

	expectError   bool
	anyReply      bool
	replyCheckers []Checker[scenario.Reply]
	errorCheckers []Checker[string]
}

// Reply adds expected reply checkers. All checkers must pass.
func (a *RedisAssert) Reply(checkers ...Checker[scenario.Reply]) *RedisAssert {
	a.replyCheckers = append(a.replyCheckers, checkers...)
	return a
}

// Fails expects the command to fail. Optional checkers validate the error
// message.
func (a *RedisAssert) Fails(checkers ...Checker[string]) *RedisAssert {
	a.expectError = true
	a.errorCheckers = append(a.errorCheckers, checkers...)
	return a
}

// Responds accepts any reply from the server, error replies included. Only
// transport failures fail the assertion.
func (a *RedisAssert) Responds() *RedisAssert {
	a.anyReply = true
	return a
}

// Assert executes the command and aborts the scenario on failure.
func (a *RedisAssert) Assert(help string) {
	a.help = help
	a.run()

	if m := a.mismatch(); m != nil {
		panic(errors.New(m.String() + a.formatHelp()))
	}
}

// Expect executes the command and records a mismatch on failure instead of
// aborting. It reports whether the expectation held.
func (a *RedisAssert) Expect(label string) bool {
	a.run()

	m := a.mismatch()
	if m == nil {
		return true
	}

	m.Label = label
	a.promise.do.record(*m)

	return false
}

func (a *RedisAssert) run() {
	p := a.promise
	switch p.timing {
	case TimingEventually:
		eventually(p.ctx, a.execute, p.timeout, a.config.RetryPollInterval)
	default:
		a.execute()
	}
}

func (a *RedisAssert) execute() bool {
	p := a.promise

	ctx, cancel := context.WithTimeout(p.ctx, a.config.ExecuteTimeout)
	defer cancel()

	v, err := replay.Replay(ctx, p.conn, p.cmd)
	a.err = err
	a.reply = scenario.Reply{}
	if err == nil {
		a.reply = scenario.ReplyOf(v)
	}

	return a.mismatch() == nil
}

// mismatch classifies the last outcome. It returns nil when the outcome
// meets expectations.
func (a *RedisAssert) mismatch() *Mismatch {
	m := &Mismatch{Command: a.promise.target + " " + a.promise.cmd.String()}

	switch {
	case a.anyReply:
		var replyErr redis.Error
		if a.err == nil || errors.As(a.err, &replyErr) {
			return nil
		}
		m.Expected = "any reply"
		m.Actual = "error " + a.err.Error()

	case a.err != nil && a.expectError:
		var failed Checker[string]
		if checkAll(a.err.Error(), a.errorCheckers, func(c Checker[string], _ string) { failed = c }) {
			return nil
		}
		m.Expected = "error " + failed.Expected()
		m.Actual = "error " + a.err.Error()

	case a.err != nil:
		m.Expected = a.expectedReply()
		m.Actual = "error " + a.err.Error()
		m.Hint = respErrorHint

	case a.expectError:
		m.Expected = "error"
		m.Actual = a.reply.String()

	default:
		var failed Checker[scenario.Reply]
		if checkAll(a.reply, a.replyCheckers, func(c Checker[scenario.Reply], _ scenario.Reply) { failed = c }) {
			return nil
		}
		m.Expected = failed.Expected()
		m.Actual = a.reply.String()
	}

	return m
}

func (a *RedisAssert) expectedReply() string {
	if len(a.replyCheckers) == 0 {
		return "success"
	}

	expected := make([]string, len(a.replyCheckers))
	for i, c := range a.replyCheckers {
		expected[i] = c.Expected()
	}

	return strings.Join(expected, " and ")
}

// HTTPAssert provides assertions for HTTP response validation.
type HTTPAssert struct {
	AssertBase

	promise        *HTTPPromise
	responseBody   string
	responseStatus int
	err            error

	statusCheckers []Checker[int]
	jsonCheckers   []JSONFieldChecker
}

// Status adds expected HTTP response status code checkers.
// All checkers must pass.
func (a *HTTPAssert) Status(checkers ...Checker[int]) *HTTPAssert {
	a.statusCheckers = append(a.statusCheckers, checkers...)
	return a
}

// JSON adds expected checkers for a JSON field at the given gjson path.
// All checkers must pass.
func (a *HTTPAssert) JSON(path string, checkers ...Checker[string]) *HTTPAssert {
	for _, checker := range checkers {
		a.jsonCheckers = append(a.jsonCheckers, JSONFieldChecker{
			Path:    path,
			Checker: checker,
		})
	}

	return a
}

func (a *HTTPAssert) Assert(help string) {
	a.help = help

	p := a.promise
	switch p.timing {
	case TimingEventually:
		eventually(p.ctx, a.execute, p.timeout, a.config.RetryPollInterval)
	default:
		a.execute()
	}

	a.check()
}

func (a *HTTPAssert) execute() bool {
	client := &http.Client{Timeout: a.config.ExecuteTimeout}
	p := a.promise

	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, p.url, nil)
	if err != nil {
		a.err = err
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		a.err = err
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.err = err
		return false
	}

	a.err = nil
	a.responseBody = string(body)
	a.responseStatus = resp.StatusCode

	return checkAll(a.responseStatus, a.statusCheckers, nil) &&
		checkAllJSON(a.responseBody, a.jsonCheckers, nil)
}

func (a *HTTPAssert) check() {
	p := a.promise

	if a.err != nil {
		panic(fmt.Errorf("GET %s\n  %v%s", p.url, a.err, a.formatHelp()))
	}

	checkAll(a.responseStatus, a.statusCheckers, func(m Checker[int], actual int) {
		panic(fmt.Errorf("GET %s\n  Expected status: %s\n  Actual status: %d %s\n  Body: %s%s",
			p.url, m.Expected(), actual, http.StatusText(actual),
			strings.TrimSpace(a.responseBody), a.formatHelp()))
	})

	checkAllJSON(a.responseBody, a.jsonCheckers, func(m JSONFieldChecker, actual string) {
		panic(fmt.Errorf("GET %s\n  Expected JSON field %q: %s\n  Actual value: %q%s",
			p.url, m.Path, m.Checker.Expected(), actual, a.formatHelp()))
	})
}
