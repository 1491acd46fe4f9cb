// Package logger configures structured logging for the CLI.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Level is shared by every handler created here.
var Level = &slog.LevelVar{}

// New returns a logger writing to w: colored and terse on a terminal, plain
// key=value text otherwise. verbose enables debug output.
func New(w io.Writer, verbose bool) *slog.Logger {
	if verbose {
		Level.Set(slog.LevelDebug)
	} else {
		Level.Set(slog.LevelInfo)
	}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			NoColor: runtime.GOOS == "windows",
			Level:   Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level}))
}

// Setup installs a stderr logger as the default.
func Setup(verbose bool) {
	slog.SetDefault(New(os.Stderr, verbose))
}

var faint = color.New(color.Faint).SprintFunc()

// ContainerSink prints forwarded container output as "<container>> <line>".
func ContainerSink(w io.Writer) func(container, line string) {
	var mu sync.Mutex

	return func(container, line string) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(w, "%s %s\n", faint(container+">"), line)
	}
}
