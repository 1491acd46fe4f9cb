package attest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

// Checker is a composable predicate used in assertions to validate actual values
// against expected conditions.
type Checker[T any] interface {
	// Check returns true if actual satisfies this checker's condition.
	Check(actual T) bool
	// Expected returns a human-readable description of what was expected.
	Expected() string
}

// isChecker validates exact value matching.
type isChecker[T comparable] struct {
	value T
}

// Is creates a checker that validates exact equality.
func Is[T comparable](value T) isChecker[T] {
	return isChecker[T]{value: value}
}

func (m isChecker[T]) Check(actual T) bool {
	return actual == m.value
}

func (m isChecker[T]) Expected() string {
	if s, ok := any(m.value).(fmt.Stringer); ok {
		return s.String()
	}

	return fmt.Sprintf("%v", m.value)
}

// isNilChecker validates that a reply is the nil reply.
type isNilChecker struct{}

// IsNil creates a checker that accepts only the nil reply.
func IsNil() isNilChecker {
	return isNilChecker{}
}

func (m isNilChecker) Check(actual scenario.Reply) bool {
	return actual.Nil
}

func (m isNilChecker) Expected() string {
	return scenario.Nil().String()
}

// containsChecker validates that a string contains a substring.
type containsChecker struct {
	substring string
}

// Contains creates a checker that checks if actual contains the substring.
func Contains(substring string) containsChecker {
	return containsChecker{substring: substring}
}

func (m containsChecker) Check(actual string) bool {
	return strings.Contains(actual, m.substring)
}

func (m containsChecker) Expected() string {
	return fmt.Sprintf("containing %q", m.substring)
}

// notChecker negates another checker.
type notChecker[T any] struct {
	checker Checker[T]
}

// Not creates a checker that negates another checker.
func Not[T any](checker Checker[T]) notChecker[T] {
	return notChecker[T]{checker: checker}
}

func (m notChecker[T]) Check(actual T) bool {
	return !m.checker.Check(actual)
}

func (m notChecker[T]) Expected() string {
	return fmt.Sprintf("not %s", m.checker.Expected())
}

// checkAll returns true if all checkers pass for the given value.
// If onFail is provided, it's called with the first failing checker.
func checkAll[T any](value T, checkers []Checker[T], onFail func(Checker[T], T)) bool {
	for _, checker := range checkers {
		if !checker.Check(value) {
			if onFail != nil {
				onFail(checker, value)
			}

			return false
		}
	}

	return true
}

// JSONFieldChecker pairs a gjson path with a checker for that field.
type JSONFieldChecker struct {
	Path    string
	Checker Checker[string]
}

// checkAllJSON returns true if all JSON field checkers pass for the given JSON.
// If onFail is provided, it's called with the first failing checker.
func checkAllJSON(json string, checkers []JSONFieldChecker, onFail func(JSONFieldChecker, string)) bool {
	for _, m := range checkers {
		value := gjson.Get(json, m.Path).String()
		if !m.Checker.Check(value) {
			if onFail != nil {
				onFail(m, value)
			}

			return false
		}
	}

	return true
}
