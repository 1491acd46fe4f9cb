package snapshot_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st3v3nmw/mirrorcheck/internal/docker/dockertest"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

type slowSaver struct {
	delay time.Duration
	err   error
	saved *atomic.Int32
}

func (s slowSaver) Save(ctx context.Context) *redis.StatusCmd {
	time.Sleep(s.delay)
	if s.err == nil {
		s.saved.Add(1)
	}
	return redis.NewStatusResult("OK", s.err)
}

func TestForceSaveWaitsForAll(t *testing.T) {
	var saved atomic.Int32
	stores := map[string]snapshot.Saver{
		"src":          slowSaver{delay: 30 * time.Millisecond, saved: &saved},
		"dst":          slowSaver{delay: 10 * time.Millisecond, saved: &saved},
		"src-expected": slowSaver{delay: 20 * time.Millisecond, saved: &saved},
		"dst-expected": slowSaver{saved: &saved},
	}

	require.NoError(t, snapshot.ForceSave(context.Background(), stores))
	assert.Equal(t, int32(4), saved.Load())
}

func TestForceSaveReportsFailure(t *testing.T) {
	var saved atomic.Int32
	stores := map[string]snapshot.Saver{
		"src": slowSaver{saved: &saved},
		"dst": slowSaver{err: errors.New("MISCONF disk full"), saved: &saved},
	}

	err := snapshot.ForceSave(context.Background(), stores)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save dst")
	assert.Contains(t, err.Error(), "MISCONF")
}

func TestCommand(t *testing.T) {
	v := &snapshot.Verifier{MountPath: "/data", Pairs: snapshot.DefaultPairs()}

	cmd := v.Command()
	require.Len(t, cmd, 3)
	assert.Equal(t, []string{"/bin/sh", "-c"}, cmd[:2])

	want := "rdb --command diff /data/src_dump.rdb | sort > /data/src_dump.rdb.txt\n" +
		"rdb --command diff /data/src_expected_dump.rdb | sort > /data/src_expected_dump.rdb.txt\n" +
		"rdb --command diff /data/dst_dump.rdb | sort > /data/dst_dump.rdb.txt\n" +
		"rdb --command diff /data/dst_expected_dump.rdb | sort > /data/dst_expected_dump.rdb.txt\n" +
		"diff /data/src_dump.rdb.txt /data/src_expected_dump.rdb.txt && " +
		"diff /data/dst_dump.rdb.txt /data/dst_expected_dump.rdb.txt; echo $?\n"
	assert.Equal(t, want, cmd[2])
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  bool
	}{
		{name: "Zero", lines: []string{"0"}, want: true},
		{name: "Zero After Output", lines: []string{"some warning", "0"}, want: true},
		{name: "Trailing Blank Lines", lines: []string{"0", "", "  "}, want: true},
		{name: "Diff Found", lines: []string{"1c1", "< set foo bar", "---", "1"}, want: false},
		{name: "Zero Not Last", lines: []string{"0", "2"}, want: false},
		{name: "No Output", lines: nil, want: false},
		{name: "Only Blank", lines: []string{""}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshot.ParseStatus(tt.lines))
		})
	}
}

func TestNormalizeAndDiff(t *testing.T) {
	tests := []struct {
		name   string
		output string
		passed bool
		log    []string
	}{
		{name: "Identical", output: "0\n", passed: true, log: []string{"0"}},
		{
			name:   "Different",
			output: "1c1\n< db=0 foo -> bar\n1\n",
			passed: false,
			log:    []string{"1c1", "< db=0 foo -> bar", "1"},
		},
		{name: "Silent", output: "", passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cli := dockertest.New()
			cli.Output = func(string) string { return tt.output }

			topo, err := topology.Provision(ctx, cli, "r1", "s1", topology.Options{
				MountPath:   "/data",
				AccessImage: "hello-world",
				ToolImage:   "rdb-tools",
			})
			require.NoError(t, err)
			defer topo.Teardown(ctx)

			v := &snapshot.Verifier{Runner: topo, MountPath: "/data", Pairs: snapshot.DefaultPairs()}
			res, err := v.NormalizeAndDiff(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.log, res.Log)
		})
	}
}
