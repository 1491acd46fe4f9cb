package attest

import (
	"fmt"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

// State is the phase a scenario is in.
type State int

const (
	StateProvisioning State = iota
	StateFixturesLoading
	StateRequestsRunning
	StateSnapshotting
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateProvisioning:
		return "PROVISIONING"
	case StateFixturesLoading:
		return "FIXTURES_LOADING"
	case StateRequestsRunning:
		return "REQUESTS_RUNNING"
	case StateSnapshotting:
		return "SNAPSHOTTING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Verdict is the outcome of one scenario.
type Verdict struct {
	Scenario *scenario.Scenario

	State State
	// AbortedIn is the state the scenario was in when it aborted.
	AbortedIn State
	Err       error

	Mismatches []Mismatch
	Snapshot   *snapshot.Result

	// Logs holds captured container output of an aborted scenario.
	Logs map[string][]string
}

// Passed reports whether the scenario ran to completion with no mismatches
// and matching snapshots.
func (v *Verdict) Passed() bool {
	return v.State == StateDone &&
		len(v.Mismatches) == 0 &&
		v.Snapshot != nil && v.Snapshot.Passed
}

// Execute drives sc through its states against do: launch, fixtures,
// requests, snapshot verification. Failures that abort the scenario are
// recovered into the verdict; Execute itself never panics.
func Execute(do *Do, sc *scenario.Scenario) (v *Verdict) {
	v = &Verdict{Scenario: sc}

	defer func() {
		v.Mismatches = do.Mismatches()

		if r := recover(); r != nil {
			v.AbortedIn = do.State()
			v.State = StateAborted
			v.Err = asError(r)
			v.Logs = do.Logs()
			do.setState(StateAborted)
		}
	}()

	test := sc.Test

	do.setState(StateProvisioning)
	do.Launch(test.GivenConfig)

	do.setState(StateFixturesLoading)
	do.Load(topology.Source, test.GivenData.Src)
	do.Load(topology.Destination, test.GivenData.Dst)
	do.Load(topology.SourceExpected, test.ThenData.Src)
	do.Load(topology.DestinationExpected, test.ThenData.Dst)

	// Mismatches are recorded and never stop later steps.
	do.setState(StateRequestsRunning)
	for i, step := range test.WhenReqThenResp {
		a := do.Proxy(step.Req).T()
		switch {
		case step.RespError:
			a.Fails()
		case step.Resp != nil:
			a.Reply(Is(*step.Resp))
		}
		a.Expect(fmt.Sprintf("step #%d", i+1))
	}

	do.setState(StateSnapshotting)
	v.Snapshot = do.Verify()

	do.setState(StateDone)
	v.State = StateDone

	return v
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}

	return fmt.Errorf("%v", r)
}
