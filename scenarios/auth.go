package scenarios

import (
	"github.com/st3v3nmw/mirrorcheck/internal/registry"
	. "github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

func init() {
	set := &registry.Set{
		Name: "Authentication",
		Summary: `With a password configured, every command except AUTH and QUIT is refused
until the connection authenticates.`,
	}

	set.Add(Scenario{
		ID: "auth-001",
		Name: `
		[Given] no password is configured
		[When] an AUTH request is received
		[Then] return an error`,
		Test: Test{
			WhenReqThenResp: []Step{When("auth", "justapass").Fails()},
		},
	})

	set.Add(Scenario{
		ID: "auth-002",
		Name: `
		[Given] a password is configured
			[And] the connection is not authenticated
		[When] a GET request is received
		[Then] return an authentication error
			[And] leave both stores untouched`,
		Test: Test{
			GivenConfig:     map[string]any{"password": "justapass"},
			GivenData:       Data{Src: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{When("get", "foo").Fails()},
			ThenData:        Data{Src: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "auth-003",
		Name: `
		[Given] a password is configured
		[When] an AUTH request with a wrong password is received
			[And] an AUTH request with the right password follows
		[Then] reject the first and accept the second
			[And] serve GET requests afterwards`,
		Test: Test{
			GivenConfig: map[string]any{"password": "justapass"},
			GivenData:   Data{Src: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{
				When("auth", "wrongpass").Fails(),
				When("auth", "justapass").Returns("OK"),
				When("get", "foo").Returns("bar"),
			},
			ThenData: Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	registry.Register("auth", set)
}
