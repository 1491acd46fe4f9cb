package scenarios

import (
	"github.com/st3v3nmw/mirrorcheck/internal/registry"
	. "github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

func init() {
	set := &registry.Set{
		Name: "GET Handling",
		Summary: `Reads through the proxy: a key is served from the destination when present,
otherwise fetched from the source, mirrored into the destination and, with
delete_on_get, removed from the source.`,
	}

	set.Add(Scenario{
		ID: "handle-get-001",
		Name: `
		[Given] a key is available in "destination"
		[When] a GET request for the key is received
		[Then] GET and return the key value from "destination"`,
		Test: Test{
			GivenData:       Data{Dst: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{When("get", "foo").Returns("bar")},
			ThenData:        Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "handle-get-002",
		Name: `
		[Given] a key is not available in "destination"
		[When] a GET request for the key is received
		[Then] return the nil reply`,
		Test: Test{
			WhenReqThenResp: []Step{When("get", "foo").Returns(nil)},
		},
	})

	set.Add(Scenario{
		ID: "handle-get-003",
		Name: `
		[Given] a key is available in both "source" and "destination"
		[When] a GET request for the key is received
		[Then] return the value from "destination"
			[And] leave "source" untouched`,
		Test: Test{
			GivenData: Data{
				Src: []Command{Cmd("set", "foo", "old")},
				Dst: []Command{Cmd("set", "foo", "new")},
			},
			WhenReqThenResp: []Step{When("get", "foo").Returns("new")},
			ThenData: Data{
				Src: []Command{Cmd("set", "foo", "old")},
				Dst: []Command{Cmd("set", "foo", "new")},
			},
		},
	})

	set.Add(Scenario{
		ID: "handle-get-004",
		Name: `
		[Given] a key is not available in "destination"
			[And] the key is available in "source"
			[And] deleteOnGet set to false
		[When] a GET request for the key is received
		[Then] GET and return the key value from "source"
			[And] SET the value with the key to "destination"`,
		Test: Test{
			GivenConfig:     map[string]any{"delete_on_get": "false"},
			GivenData:       Data{Src: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{When("get", "foo").Returns("bar")},
			ThenData: Data{
				Src: []Command{Cmd("set", "foo", "bar")},
				Dst: []Command{Cmd("set", "foo", "bar")},
			},
		},
	})

	set.Add(Scenario{
		ID: "handle-get-005",
		Name: `
		[Given] a key is not available in "destination"
			[And] the key is available in "source"
			[And] deleteOnGet set to true
		[When] a GET request for the key is received
		[Then] GET and return the key value from "source"
			[And] SET the value with the key to "destination"
			[And] DELETE the key from "source"`,
		Test: Test{
			GivenConfig:     map[string]any{"delete_on_get": "true"},
			GivenData:       Data{Src: []Command{Cmd("set", "foo", "bar")}},
			WhenReqThenResp: []Step{When("get", "foo").Returns("bar")},
			ThenData:        Data{Dst: []Command{Cmd("set", "foo", "bar")}},
		},
	})

	set.Add(Scenario{
		ID: "handle-get-006",
		Name: `
		[Given] a key is not available in "destination"
			[And] the key is not available in "source"
		[When] a GET request for the key is received
		[Then] return the nil reply
			[And] leave both stores empty`,
		Test: Test{
			WhenReqThenResp: []Step{
				When("get", "foo").Returns(nil),
				When("get", "foo").Returns(nil),
			},
		},
	})

	registry.Register("handle-get", set)
}
