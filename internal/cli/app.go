package cli

import (
	commands "github.com/urfave/cli/v3"

	"github.com/st3v3nmw/mirrorcheck/internal/config"
)

func configFlag() commands.Flag {
	return &commands.StringFlag{
		Name:    "config",
		Usage:   "Path to the config file",
		Aliases: []string{"c"},
		Value:   config.ConfigPath,
	}
}

func fileFlag() commands.Flag {
	return &commands.StringSliceFlag{
		Name:    "file",
		Usage:   "Scenario file to load (repeatable)",
		Aliases: []string{"f"},
	}
}

// App returns the mirrorcheck command tree.
func App() *commands.Command {
	return &commands.Command{
		Name:  "mirrorcheck",
		Usage: "Test a key-value migration proxy against real stores",
		Commands: []*commands.Command{
			{
				Name:      "init",
				Usage:     "Create a config file and an example scenario file",
				ArgsUsage: "[path]",
				Action:    InitProject,
			},
			{
				Name:  "run",
				Usage: "Run scenarios against the proxy",
				Flags: []commands.Flag{
					configFlag(),
					fileFlag(),
					&commands.StringSliceFlag{
						Name:    "set",
						Usage:   "Built-in scenario set to run (repeatable)",
						Aliases: []string{"s"},
					},
					&commands.StringFlag{
						Name:  "run-id",
						Usage: "Namespace for containers, networks and volumes (default: random)",
					},
					&commands.StringFlag{
						Name:    "docker-host",
						Usage:   "Docker daemon address",
						Sources: commands.EnvVars("DOCKER_HOST"),
					},
					&commands.BoolFlag{
						Name:    "verbose",
						Usage:   "Show debug logs, image progress and container output",
						Aliases: []string{"v"},
						Value:   false,
					},
				},
				Action: RunScenarios,
			},
			{
				Name:  "list",
				Usage: "Show built-in scenario sets",
				Flags: []commands.Flag{
					&commands.BoolFlag{
						Name:    "verbose",
						Usage:   "Show every scenario",
						Aliases: []string{"v"},
					},
				},
				Action: ListScenarios,
			},
			{
				Name:      "validate",
				Usage:     "Check scenario files without running them",
				ArgsUsage: "<file>...",
				Action:    ValidateFiles,
			},
			{
				Name:      "render",
				Usage:     "Print the proxy configuration synthesized for a scenario",
				ArgsUsage: "<scenario-id>",
				Flags: []commands.Flag{
					configFlag(),
					fileFlag(),
					&commands.StringFlag{
						Name:  "src",
						Usage: "Source store address",
						Value: "source:6379",
					},
					&commands.StringFlag{
						Name:  "dst",
						Usage: "Destination store address",
						Value: "destination:6379",
					},
				},
				Action: RenderConfig,
			},
		},
	}
}
