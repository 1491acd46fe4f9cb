// Package replay sends scenario commands to live store connections.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

// Doer is the part of a store client needed to replay commands.
type Doer interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
}

// Replay sends cmd over conn and returns the raw result. The absent reply is
// a successful nil result; any other failure is returned as is.
func Replay(ctx context.Context, conn Doer, cmd scenario.Command) (any, error) {
	res, err := conn.Do(ctx, cmd.Argv()...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	return res, err
}

// All replays cmds in order and stops at the first failure.
func All(ctx context.Context, conn Doer, cmds []scenario.Command) error {
	for i, cmd := range cmds {
		if _, err := Replay(ctx, conn, cmd); err != nil {
			return fmt.Errorf("replay #%d %s: %w", i+1, cmd, err)
		}
	}

	return nil
}
