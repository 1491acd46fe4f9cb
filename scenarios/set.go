package scenarios

import (
	"github.com/st3v3nmw/mirrorcheck/internal/registry"
	. "github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

func init() {
	set := &registry.Set{
		Name: "SET Handling",
		Summary: `Writes through the proxy always land on the destination; with delete_on_set
the stale copy in the source is removed.`,
	}

	set.Add(Scenario{
		ID: "handle-set-001",
		Name: `
		[Given] deleteOnSet set to false
		[When] a SET request for a key is received
		[Then] SET the key with the value to "destination"`,
		Test: Test{
			GivenConfig:     map[string]any{"delete_on_set": "false"},
			WhenReqThenResp: []Step{When("set", "foo", "bar").Returns("OK")},
			ThenData:        Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "handle-set-002",
		Name: `
		[Given] deleteOnSet set to false
			[And] the key is available in "source"
		[When] a SET request for the key is received
		[Then] SET the key with the value to "destination"
			[And] keep the key in "source"`,
		Test: Test{
			GivenConfig:     map[string]any{"delete_on_set": "false"},
			GivenData:       Data{Src: []Command{Cmd("set", "foo", "old")}},
			WhenReqThenResp: []Step{When("set", "foo", "bar").Returns("OK")},
			ThenData: Data{
				Src: []Command{Cmd("set", "foo", "old")},
				Dst: []Command{Cmd("set", "foo", "bar")},
			},
		},
	})

	set.Add(Scenario{
		ID: "handle-set-003",
		Name: `
		[Given] deleteOnSet set to true
		[When] a SET request for a key is received
		[Then] SET the key with the value to "destination"
			[And] DELETE the key from "source"`,
		Test: Test{
			GivenConfig:     map[string]any{"delete_on_set": "true"},
			GivenData:       Data{Src: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{When("set", "foo", "bar").Returns("OK")},
			ThenData:        Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "handle-set-004",
		Name: `
		[Given] a key written through the proxy
		[When] a GET request for the key is received
		[Then] return the written value from "destination"`,
		Test: Test{
			WhenReqThenResp: []Step{
				When("set", "foo", "bar").Returns("OK"),
				When("get", "foo").Returns("bar"),
			},
			ThenData: Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	registry.Register("handle-set", set)
}
