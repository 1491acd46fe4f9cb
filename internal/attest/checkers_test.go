package attest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

func TestCheckers(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker[scenario.Reply]
		actual   scenario.Reply
		pass     bool
		expected string
	}{
		{"Is Match", Is(scenario.ReplyOf("v")), scenario.ReplyOf("v"), true, `"v"`},
		{"Is Mismatch", Is(scenario.ReplyOf("v")), scenario.ReplyOf("w"), false, `"v"`},
		{"Is Nil Reply", Is(scenario.Nil()), scenario.Nil(), true, "(nil)"},
		{"Empty Is Not Nil", Is(scenario.Nil()), scenario.ReplyOf(""), false, "(nil)"},
		{"IsNil", IsNil(), scenario.Nil(), true, "(nil)"},
		{"IsNil Value", IsNil(), scenario.ReplyOf("v"), false, "(nil)"},
		{"Not", Not[scenario.Reply](IsNil()), scenario.ReplyOf("v"), true, "not (nil)"},
		{"Integer Reply", Is(scenario.ReplyOf(1)), scenario.ReplyOf(int64(1)), true, `"1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pass, tt.checker.Check(tt.actual))
			assert.Equal(t, tt.expected, tt.checker.Expected())
		})
	}
}

func TestContains(t *testing.T) {
	c := Contains("NOAUTH")
	assert.True(t, c.Check("NOAUTH Authentication required."))
	assert.False(t, c.Check("ERR invalid password"))
	assert.Equal(t, `containing "NOAUTH"`, c.Expected())
}

func TestCheckAll(t *testing.T) {
	checkers := []Checker[int]{Is(200), Not[int](Is(500))}
	assert.True(t, checkAll(200, checkers, nil))

	var failed Checker[int]
	assert.False(t, checkAll(500, checkers, func(c Checker[int], _ int) { failed = c }))
	assert.Equal(t, "200", failed.Expected())
}

func TestCheckAllJSON(t *testing.T) {
	body := `{"sourceRedis":{"status":"OK"},"destinationRedis":{"status":"Error","error":"dial tcp: refused"}}`

	ok := []JSONFieldChecker{{Path: "sourceRedis.status", Checker: Is("OK")}}
	assert.True(t, checkAllJSON(body, ok, nil))

	bad := append(ok, JSONFieldChecker{Path: "destinationRedis.status", Checker: Is("OK")})
	var path, actual string
	assert.False(t, checkAllJSON(body, bad, func(c JSONFieldChecker, v string) {
		path, actual = c.Path, v
	}))
	assert.Equal(t, "destinationRedis.status", path)
	assert.Equal(t, "Error", actual)
}
