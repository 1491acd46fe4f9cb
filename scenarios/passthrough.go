package scenarios

import (
	"github.com/st3v3nmw/mirrorcheck/internal/registry"
	. "github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

func init() {
	set := &registry.Set{
		Name:    "Passthrough",
		Summary: `Commands the proxy does not handle itself go to the destination unchanged.`,
	}

	set.Add(Scenario{
		ID: "passthrough-001",
		Name: `
		[Given] a counter in "destination"
		[When] an INCR request for the counter is received
		[Then] increment it in "destination"`,
		Test: Test{
			GivenData:       Data{Dst: []Command{Cmd("set", "hits", "1")}},
			WhenReqThenResp: []Step{When("incr", "hits").Returns(2)},
			ThenData:        Data{Dst: []Command{Cmd("set", "hits", "2")}},
		},
	})

	set.Add(Scenario{
		ID: "passthrough-002",
		Name: `
		[Given] a key in both stores
		[When] a DEL request for the key is received
		[Then] delete it from "destination" only`,
		Test: Test{
			GivenData: Data{
				Src: []Command{Cmd("set", "foo", "bar")},
				Dst: []Command{Cmd("set", "foo", "bar")},
			},
			WhenReqThenResp: []Step{When("del", "foo").Returns(1)},
			ThenData:        Data{Src: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "passthrough-003",
		Name: `
		[When] a command unknown to the stores is received
		[Then] return the error from "destination"`,
		Test: Test{
			WhenReqThenResp: []Step{When("nosuchcommand", "foo").Fails()},
		},
	})

	registry.Register("passthrough", set)
}
