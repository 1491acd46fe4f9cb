package docker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/tidwall/gjson"
)

// ErrDaemon is returned when the daemon reports a failure inside a progress
// stream.
var ErrDaemon = errors.New("daemon error")

// Build builds the image in dir, tags it, and echoes build output to w.
func Build(ctx context.Context, cli Client, dir, tag string, w io.Writer) error {
	buildCtx, err := TarDir(dir)
	if err != nil {
		return fmt.Errorf("failed to archive build context %s: %w", dir, err)
	}

	resp, err := cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if err := readProgress(resp.Body, w); err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}

	return nil
}

// Ensure pulls ref unless an image matching it is already present.
func Ensure(ctx context.Context, cli Client, ref string, w io.Writer) error {
	images, err := cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	if len(images) > 0 {
		return nil
	}

	rc, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	if err := readProgress(rc, w); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	return nil
}

// readProgress drains a stream of JSON progress messages. Build output and
// pull status lines are copied to w.
func readProgress(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}

		msg := gjson.ParseBytes(line)
		if e := msg.Get("error"); e.Exists() {
			return fmt.Errorf("%w: %s", ErrDaemon, e.String())
		}

		if w == nil {
			continue
		}

		if s := msg.Get("stream"); s.Exists() {
			io.WriteString(w, s.String())
		} else if s := msg.Get("status"); s.Exists() && !msg.Get("progressDetail.current").Exists() {
			fmt.Fprintln(w, s.String())
		}
	}

	return scanner.Err()
}
